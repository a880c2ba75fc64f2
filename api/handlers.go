/*
handlers.go - HTTP API handlers for the commission engine

PURPOSE:
  Exposes the commission engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Agents:
    GET    /api/agents                     List all agents
    POST   /api/agents                     Create agent
    GET    /api/agents/{id}                Get agent details
    GET    /api/agents/{id}/overrides      Upline override breakdown
    GET    /api/agents/{id}/transactions   Commission transactions
    GET    /api/agents/{id}/installments   Installments across transactions
    GET    /api/agents/{id}/forecast       Monthly cash-flow projection

  Ranks:
    GET    /api/ranks                      Current rank override table
    PUT    /api/ranks                      Replace rank table from JSON

  Schedules:
    GET    /api/schedules                  List payment schedule templates
    POST   /api/schedules                  Create template from JSON
    GET    /api/schedules/{id}             Get template

  Transactions:
    POST   /api/transactions               Record commission transaction
    GET    /api/transactions/{id}          Get transaction
    GET    /api/transactions/{id}/installments  List installments
    POST   /api/transactions/{id}/installments  Generate installments
    POST   /api/transactions/{id}/installments/regenerate  Regenerate

  Installments:
    POST   /api/installments/{id}/status   Mark paid / pending / overdue

  Approvals:
    POST   /api/approvals                  Open approval for a transaction
    GET    /api/approvals?status=...       List by status
    GET    /api/approvals/{id}             Get approval
    POST   /api/approvals/{id}/transition  Advance or reject
    GET    /api/approvals/{id}/history     Audit trail

  Admin:
    GET    /api/admin/cutoff-day           Forecast cutoff configuration
    PUT    /api/admin/cutoff-day           Change cutoff day
    POST   /api/admin/sweep-overdue        Mark past-due installments

  Scenarios:
    GET    /api/scenarios                  List demo scenarios
    POST   /api/scenarios/load             Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid transitions, already-generated
  - 404: Resource not found
  - 409: Optimistic-concurrency conflicts
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store           engine.Store
	ScheduleFactory *factory.ScheduleFactory
	Installments    *engine.InstallmentService
	Approvals       *engine.ApprovalService
	Forecasts       *engine.ForecastAggregator
	Logger          *logrus.Logger

	validate *validator.Validate

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires the services around the given store.
func NewHandler(store engine.Store, notifier engine.Notifier, cfg engine.Config, logger *logrus.Logger) *Handler {
	installments := engine.NewInstallmentService(store, notifier, cfg)
	return &Handler{
		Store:           store,
		ScheduleFactory: factory.NewScheduleFactory(),
		Installments:    installments,
		Approvals:       engine.NewApprovalService(store, installments),
		Forecasts:       engine.NewForecastAggregator(store, cfg),
		Logger:          logger,
		validate:        validator.New(),
	}
}

// =============================================================================
// AGENT HANDLERS
// =============================================================================

// ListAgents returns all agents.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Store.ListAgents(r.Context())
	if err != nil {
		h.writeEngineError(w, "Failed to list agents", err)
		return
	}

	dtos := make([]AgentDTO, len(agents))
	for i, a := range agents {
		dtos[i] = toAgentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAgent returns a single agent.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id := engine.AgentID(chi.URLParam(r, "id"))

	a, err := h.Store.GetAgent(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "Failed to get agent", err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentDTO(a))
}

// CreateAgent creates a new agent.
func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid agent", err)
		return
	}

	ctx := r.Context()
	ranks, err := h.Store.RankTable(ctx)
	if err != nil {
		h.writeEngineError(w, "Failed to load rank table", err)
		return
	}
	if _, ok := ranks.Lookup(engine.Rank(req.Rank)); !ok {
		writeError(w, http.StatusBadRequest, "Unknown rank: "+req.Rank, nil)
		return
	}

	a := engine.Agent{
		ID:        engine.AgentID(req.ID),
		Name:      req.Name,
		Rank:      engine.Rank(req.Rank),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if a.ID == "" {
		a.ID = engine.AgentID(uuid.NewString())
	}
	if req.UplineID != nil && *req.UplineID != "" {
		uplineID := engine.AgentID(*req.UplineID)
		if _, err := h.Store.GetAgent(ctx, uplineID); err != nil {
			h.writeEngineError(w, "Upline not found", err)
			return
		}
		a.UplineID = &uplineID
	}

	if err := h.Store.SaveAgent(ctx, a); err != nil {
		h.writeEngineError(w, "Failed to create agent", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgentDTO(a))
}

// GetOverrides returns the upline override breakdown for a hypothetical or
// real base commission. GET /api/agents/{id}/overrides?amount=10000
func (h *Handler) GetOverrides(w http.ResponseWriter, r *http.Request) {
	id := engine.AgentID(chi.URLParam(r, "id"))

	amountStr := r.URL.Query().Get("amount")
	if amountStr == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'amount' is required", nil)
		return
	}
	amount, err := engine.ParseMoney(amountStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	ctx := r.Context()
	ranks, err := h.Store.RankTable(ctx)
	if err != nil {
		h.writeEngineError(w, "Failed to load rank table", err)
		return
	}

	calc := engine.NewOverrideCalculator(ranks, h.Installments.Config)
	overrides, err := calc.OverridesForAgent(ctx, h.Store, id, amount)
	if err != nil {
		h.writeEngineError(w, "Failed to compute overrides", err)
		return
	}

	dtos := make([]OverrideDTO, len(overrides))
	for i, o := range overrides {
		dtos[i] = OverrideDTO{
			AgentID: string(o.AgentID),
			Rank:    string(o.Rank),
			Percent: o.Percent.String(),
			Amount:  o.Amount.StringFixed(2),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAgentTransactions returns the agent's commission transactions.
func (h *Handler) GetAgentTransactions(w http.ResponseWriter, r *http.Request) {
	id := engine.AgentID(chi.URLParam(r, "id"))

	txs, err := h.Store.ListTransactionsByAgent(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "Failed to list transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toTransactionDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAgentInstallments returns all installments owed to the agent.
func (h *Handler) GetAgentInstallments(w http.ResponseWriter, r *http.Request) {
	id := engine.AgentID(chi.URLParam(r, "id"))

	insts, err := h.Store.InstallmentsByAgent(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "Failed to list installments", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTOs(insts))
}

// GetForecast returns the agent's monthly cash-flow projection.
// GET /api/agents/{id}/forecast?months=6&cutoff_day=26
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	id := engine.AgentID(chi.URLParam(r, "id"))

	months := 6
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid months", err)
			return
		}
		months = n
	}
	cutoff := 0
	if v := r.URL.Query().Get("cutoff_day"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid cutoff_day", err)
			return
		}
		cutoff = n
	}

	f, err := h.Forecasts.Forecast(r.Context(), id, months, cutoff)
	if err != nil {
		h.writeEngineError(w, "Failed to compute forecast", err)
		return
	}
	writeJSON(w, http.StatusOK, toForecastDTO(f))
}

// =============================================================================
// RANK HANDLERS
// =============================================================================

// ListRanks returns the current rank override table.
func (h *Handler) ListRanks(w http.ResponseWriter, r *http.Request) {
	ranks, err := h.Store.RankTable(r.Context())
	if err != nil {
		h.writeEngineError(w, "Failed to load rank table", err)
		return
	}

	defs := ranks.Definitions()
	dtos := make([]RankDTO, len(defs))
	for i, d := range defs {
		dtos[i] = RankDTO{
			Rank:            string(d.Rank),
			OverridePercent: d.OverridePercent.String(),
			Level:           d.Level,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ReplaceRanks replaces the rank table from a JSON definition.
func (h *Handler) ReplaceRanks(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	defs, err := h.ScheduleFactory.ParseRankTable(body)
	if err != nil {
		h.writeEngineError(w, "Invalid rank table", err)
		return
	}
	if err := h.Store.SaveRankDefinitions(r.Context(), defs); err != nil {
		h.writeEngineError(w, "Failed to save rank table", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": len(defs)})
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// ListSchedules returns all payment schedule templates.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.Store.ListSchedules(r.Context())
	if err != nil {
		h.writeEngineError(w, "Failed to list schedules", err)
		return
	}
	dtos := make([]ScheduleDTO, len(schedules))
	for i, t := range schedules {
		dtos[i] = toScheduleDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSchedule returns a single template.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := engine.ScheduleID(chi.URLParam(r, "id"))

	t, err := h.Store.GetSchedule(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "Failed to get schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(t))
}

// CreateSchedule creates a template from its JSON definition.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tpl, err := h.ScheduleFactory.ParseSchedule(body)
	if err != nil {
		h.writeEngineError(w, "Invalid schedule", err)
		return
	}
	if err := h.Store.SaveSchedule(r.Context(), tpl); err != nil {
		h.writeEngineError(w, "Failed to save schedule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleDTO(tpl))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// CreateTransaction records a commission transaction.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction", err)
		return
	}

	amount, err := engine.ParseMoney(req.CommissionAmount)
	if err != nil || amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid commission_amount", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	ctx := r.Context()
	if _, err := h.Store.GetAgent(ctx, engine.AgentID(req.AgentID)); err != nil {
		h.writeEngineError(w, "Agent not found", err)
		return
	}

	txn := engine.Transaction{
		ID:               engine.TransactionID(req.ID),
		AgentID:          engine.AgentID(req.AgentID),
		CommissionAmount: amount,
		Date:             date.UTC(),
		SplitPercent:     h.Installments.Config.DefaultSplitPercent,
		CreatedAt:        time.Now().UTC(),
	}
	if txn.ID == "" {
		txn.ID = engine.TransactionID(uuid.NewString())
	}
	if req.SplitPercent != "" {
		split, err := engine.ParseMoney(req.SplitPercent)
		if err != nil || split.IsNegative() || split.GreaterThan(decimal.NewFromInt(100)) {
			writeError(w, http.StatusBadRequest, "Invalid split_percent (must be between 0 and 100)", err)
			return
		}
		txn.SplitPercent = split
	}
	if req.ScheduleID != nil && *req.ScheduleID != "" {
		sid := engine.ScheduleID(*req.ScheduleID)
		if _, err := h.Store.GetSchedule(ctx, sid); err != nil {
			h.writeEngineError(w, "Schedule not found", err)
			return
		}
		txn.ScheduleID = &sid
	}

	if err := h.Store.SaveTransaction(ctx, txn); err != nil {
		h.writeEngineError(w, "Failed to save transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(txn))
}

// GetTransaction returns a single transaction.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := engine.TransactionID(chi.URLParam(r, "id"))

	txn, err := h.Store.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "Failed to get transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(txn))
}

// ListTransactionInstallments returns the installments of a transaction.
func (h *Handler) ListTransactionInstallments(w http.ResponseWriter, r *http.Request) {
	id := engine.TransactionID(chi.URLParam(r, "id"))

	insts, err := h.Store.InstallmentsByTransaction(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "Failed to list installments", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTOs(insts))
}

// GenerateInstallments materializes installments for a transaction.
// POST /api/transactions/{id}/installments
func (h *Handler) GenerateInstallments(w http.ResponseWriter, r *http.Request) {
	id := engine.TransactionID(chi.URLParam(r, "id"))

	result, err := h.Installments.Generate(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "Failed to generate installments", err)
		return
	}
	writeJSON(w, http.StatusCreated, GenerateResponse{
		Installments: toInstallmentDTOs(result.Installments),
		Warning:      result.Warning,
	})
}

// RegenerateInstallments replaces a transaction's installments, optionally
// with a different schedule. Refused once any installment is paid.
// POST /api/transactions/{id}/installments/regenerate
func (h *Handler) RegenerateInstallments(w http.ResponseWriter, r *http.Request) {
	id := engine.TransactionID(chi.URLParam(r, "id"))

	var req RegenerateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	var newSchedule *engine.ScheduleID
	if req.ScheduleID != nil && *req.ScheduleID != "" {
		sid := engine.ScheduleID(*req.ScheduleID)
		newSchedule = &sid
	}

	result, err := h.Installments.Regenerate(r.Context(), id, newSchedule)
	if err != nil {
		h.writeEngineError(w, "Failed to regenerate installments", err)
		return
	}
	writeJSON(w, http.StatusCreated, GenerateResponse{
		Installments: toInstallmentDTOs(result.Installments),
		Warning:      result.Warning,
	})
}

// =============================================================================
// INSTALLMENT HANDLERS
// =============================================================================

// ProcessInstallment updates an installment's payment state.
// POST /api/installments/{id}/status
func (h *Handler) ProcessInstallment(w http.ResponseWriter, r *http.Request) {
	id := engine.InstallmentID(chi.URLParam(r, "id"))

	var req ProcessInstallmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid status update", err)
		return
	}

	inst, err := h.Installments.Process(r.Context(), id, engine.InstallmentStatus(req.Status), req.Notes)
	if err != nil {
		h.writeEngineError(w, "Failed to process installment", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTO(inst))
}

// =============================================================================
// APPROVAL HANDLERS
// =============================================================================

// OpenApproval submits a transaction into the approval workflow.
func (h *Handler) OpenApproval(w http.ResponseWriter, r *http.Request) {
	var req OpenApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid approval request", err)
		return
	}

	a, err := h.Approvals.Open(r.Context(), engine.TransactionID(req.TransactionID), req.SubmittedBy)
	if err != nil {
		h.writeEngineError(w, "Failed to open approval", err)
		return
	}
	writeJSON(w, http.StatusCreated, toApprovalDTO(a))
}

// GetApproval returns a single approval record.
func (h *Handler) GetApproval(w http.ResponseWriter, r *http.Request) {
	id := engine.ApprovalID(chi.URLParam(r, "id"))

	a, err := h.Store.GetApproval(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "Failed to get approval", err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalDTO(a))
}

// ListApprovals returns approvals filtered by status.
// GET /api/approvals?status=pending
func (h *Handler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	status := engine.ApprovalStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = engine.ApprovalPending
	}

	approvals, err := h.Store.ListApprovalsByStatus(r.Context(), status)
	if err != nil {
		h.writeEngineError(w, "Failed to list approvals", err)
		return
	}
	dtos := make([]ApprovalDTO, len(approvals))
	for i, a := range approvals {
		dtos[i] = toApprovalDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TransitionApproval advances or rejects an approval.
// POST /api/approvals/{id}/transition
func (h *Handler) TransitionApproval(w http.ResponseWriter, r *http.Request) {
	id := engine.ApprovalID(chi.URLParam(r, "id"))

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transition request", err)
		return
	}

	a, err := h.Approvals.Transition(r.Context(), id, engine.ApprovalStatus(req.Status), req.Actor, req.Notes)
	if err != nil {
		h.writeEngineError(w, "Failed to transition approval", err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalDTO(a))
}

// GetApprovalHistory returns the approval's audit trail.
func (h *Handler) GetApprovalHistory(w http.ResponseWriter, r *http.Request) {
	id := engine.ApprovalID(chi.URLParam(r, "id"))

	entries, err := h.Approvals.History(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "Failed to get history", err)
		return
	}

	dtos := make([]HistoryEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = HistoryEntryDTO{
			PreviousStatus: string(e.PreviousStatus),
			NewStatus:      string(e.NewStatus),
			Actor:          e.Actor,
			Notes:          e.Notes,
			At:             formatTime(e.At),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// GetCutoffDay returns the stored forecast cutoff configuration.
func (h *Handler) GetCutoffDay(w http.ResponseWriter, r *http.Request) {
	day, err := h.Store.GetCutoffDay(r.Context())
	if err != nil {
		h.writeEngineError(w, "Failed to load cutoff day", err)
		return
	}
	writeJSON(w, http.StatusOK, CutoffDayDTO{CutoffDay: day})
}

// SetCutoffDay changes the forecast cutoff day.
func (h *Handler) SetCutoffDay(w http.ResponseWriter, r *http.Request) {
	var req CutoffDayDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Store.SetCutoffDay(r.Context(), req.CutoffDay); err != nil {
		h.writeEngineError(w, "Failed to set cutoff day", err)
		return
	}
	writeJSON(w, http.StatusOK, CutoffDayDTO{CutoffDay: req.CutoffDay})
}

// SweepOverdue marks past-due pending installments overdue.
// POST /api/admin/sweep-overdue
func (h *Handler) SweepOverdue(w http.ResponseWriter, r *http.Request) {
	marked, err := h.Installments.SweepOverdue(r.Context())
	if err != nil {
		h.writeEngineError(w, "Failed to sweep overdue installments", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{
		MarkedOverdue: len(marked),
		Installments:  toInstallmentDTOs(marked),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine error kinds onto HTTP status codes.
func (h *Handler) writeEngineError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case engine.IsNotFound(err):
		status = http.StatusNotFound
	case engine.IsRetryable(err), engine.IsStateConflict(err):
		status = http.StatusConflict
	case engine.IsClientError(err):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError && h.Logger != nil {
		h.Logger.WithFields(logrus.Fields{
			"module": "api",
		}).Error(message + ": " + err.Error())
	}
	writeError(w, status, message, err)
}

func readBody(r *http.Request) (string, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
