/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates agents, schedules,
	and transactions that demonstrate specific features.

AVAILABLE SCENARIOS:

	small-agency:     Three-level hierarchy with a closed sale ready for
	                  override and installment generation
	payment-history:  Transactions with paid, pending and past-due
	                  installments, useful for forecast and sweep demos
	approval-flow:    A transaction moving through the approval workflow

HOW SCENARIOS WORK:
 1. Create the rank table and schedule templates (upserts)
 2. Create the agent hierarchy
 3. Record transactions, generate installments
 4. Optionally process payments and open approvals

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-agency"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Transaction IDs are freshly generated on every load so a scenario can
	be loaded repeatedly. Agent and schedule IDs are stable upserts.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - factory/schedule.go: Schedule JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-agency",
		Name:        "Small Agency",
		Description: "Advisor under Team Leader under Regional Director, one closed sale",
		Category:    "hierarchy",
	},
	{
		ID:          "payment-history",
		Name:        "Payment History",
		Description: "Mixed paid, pending and past-due installments across two agents",
		Category:    "installments",
	},
	{
		ID:          "approval-flow",
		Name:        "Approval Flow",
		Description: "A commission submitted for approval, reviewed and approved",
		Category:    "approvals",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario populates the database with a demo scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	var err error
	switch req.ScenarioID {
	case "small-agency":
		err = h.loadSmallAgencyScenario(ctx)
	case "payment-history":
		err = h.loadPaymentHistoryScenario(ctx)
	case "approval-flow":
		err = h.loadApprovalFlowScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario: "+req.ScenarioID, nil)
		return
	}

	if err != nil {
		h.writeEngineError(w, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{
		"loaded": req.ScenarioID,
	})
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// seedBaseline upserts the standard schedule templates and the demo agent
// hierarchy shared by all scenarios:
//
//	regional-rita (Regional Director)
//	  └── leader-lee (Team Leader)
//	        └── advisor-ana (Advisor)
//	  └── senior-sam (Senior Advisor, no downline)
func (h *Handler) seedBaseline(ctx context.Context) error {
	standard, err := h.ScheduleFactory.ParseSchedule(
		factory.StandardScheduleJSON("standard-3-part", "Standard 3-Part", true))
	if err != nil {
		return err
	}
	upfront, err := h.ScheduleFactory.ParseSchedule(
		factory.UpfrontScheduleJSON("upfront", "Upfront"))
	if err != nil {
		return err
	}
	quarterly, err := h.ScheduleFactory.ParseSchedule(
		factory.MonthlyScheduleJSON("quarterly", "Quarterly", 3))
	if err != nil {
		return err
	}
	for _, tpl := range []engine.PaymentScheduleTemplate{standard, upfront, quarterly} {
		if err := h.Store.SaveSchedule(ctx, tpl); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	rita := engine.Agent{ID: "regional-rita", Name: "Rita Moreno", Rank: engine.RankRegionalDirector, Active: true, CreatedAt: now}
	lee := engine.Agent{ID: "leader-lee", Name: "Lee Chandra", Rank: engine.RankTeamLeader, Active: true, CreatedAt: now}
	ana := engine.Agent{ID: "advisor-ana", Name: "Ana Flores", Rank: engine.RankAdvisor, Active: true, CreatedAt: now}
	sam := engine.Agent{ID: "senior-sam", Name: "Sam Okafor", Rank: engine.RankSeniorAdvisor, Active: true, CreatedAt: now}

	ritaID := rita.ID
	leeID := lee.ID
	lee.UplineID = &ritaID
	ana.UplineID = &leeID
	sam.UplineID = &ritaID

	for _, a := range []engine.Agent{rita, lee, ana, sam} {
		if err := h.Store.SaveAgent(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) recordTransaction(ctx context.Context, agentID engine.AgentID, amount float64, date time.Time, scheduleID *engine.ScheduleID) (engine.Transaction, error) {
	txn := engine.Transaction{
		ID:               engine.TransactionID(fmt.Sprintf("demo-%s", uuid.NewString()[:8])),
		AgentID:          agentID,
		CommissionAmount: engine.NewMoney(amount),
		Date:             date,
		ScheduleID:       scheduleID,
		SplitPercent:     h.Installments.Config.DefaultSplitPercent,
		CreatedAt:        time.Now().UTC(),
	}
	if err := h.Store.SaveTransaction(ctx, txn); err != nil {
		return engine.Transaction{}, err
	}
	return txn, nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadSmallAgencyScenario: one closed sale for the bottom-of-chain advisor,
// installments generated on the default schedule.
func (h *Handler) loadSmallAgencyScenario(ctx context.Context) error {
	if err := h.seedBaseline(ctx); err != nil {
		return err
	}

	txn, err := h.recordTransaction(ctx, "advisor-ana", 10000, engine.Today(), nil)
	if err != nil {
		return err
	}
	_, err = h.Installments.Generate(ctx, txn.ID)
	return err
}

// loadPaymentHistoryScenario: several sales in the recent past with the
// first installments paid and one schedule date already behind us, so the
// overdue sweep and the forecast both have material to work with.
func (h *Handler) loadPaymentHistoryScenario(ctx context.Context) error {
	if err := h.seedBaseline(ctx); err != nil {
		return err
	}

	today := engine.Today()

	// Two months back: fully generated, first two installments paid.
	old, err := h.recordTransaction(ctx, "advisor-ana", 8000, today.AddDate(0, -2, 0), nil)
	if err != nil {
		return err
	}
	if _, err := h.Installments.Generate(ctx, old.ID); err != nil {
		return err
	}
	insts, err := h.Store.InstallmentsByTransaction(ctx, old.ID)
	if err != nil {
		return err
	}
	for _, inst := range insts {
		if inst.Number <= 2 {
			if _, err := h.Installments.Process(ctx, inst.ID, engine.InstallmentPaid, "demo payment"); err != nil {
				return err
			}
		}
	}

	// Last month: generated, nothing paid, first installment past due.
	recent, err := h.recordTransaction(ctx, "senior-sam", 12000, today.AddDate(0, -1, 0), nil)
	if err != nil {
		return err
	}
	if _, err := h.Installments.Generate(ctx, recent.ID); err != nil {
		return err
	}

	// Today: fresh sale on the quarterly schedule, not yet generated.
	quarterly := engine.ScheduleID("quarterly")
	_, err = h.recordTransaction(ctx, "advisor-ana", 15000, today, &quarterly)
	return err
}

// loadApprovalFlowScenario: a sale submitted for approval and walked to
// Approved, one step short of Ready for Payment so the demo can show
// installment generation firing on that transition.
func (h *Handler) loadApprovalFlowScenario(ctx context.Context) error {
	if err := h.seedBaseline(ctx); err != nil {
		return err
	}

	txn, err := h.recordTransaction(ctx, "advisor-ana", 20000, engine.Today(), nil)
	if err != nil {
		return err
	}

	approval, err := h.Approvals.Open(ctx, txn.ID, "advisor-ana")
	if err != nil {
		return err
	}
	if _, err := h.Approvals.Transition(ctx, approval.ID, engine.ApprovalUnderReview, "leader-lee", "looks right"); err != nil {
		return err
	}
	_, err = h.Approvals.Transition(ctx, approval.ID, engine.ApprovalApproved, "regional-rita", "")
	return err
}
