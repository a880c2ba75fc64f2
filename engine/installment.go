/*
installment.go - Installment generation and payment processing

PURPOSE:
  Expands a payment schedule template plus a transaction's commission amount
  and date into concrete dated installment records, at most once per
  transaction.

GENERATION FLOW:

  Transaction ──▶ resolve schedule ──▶ expand templates ──▶ atomic batch
                  (explicit or the       amount/date per      insert + flag
                   default template)     installment           check-and-set

AT-MOST-ONCE:
  The installments_generated flag plus the batch insert are one atomic store
  operation (GenerationStore.CreateInstallments). Two concurrent generation
  calls against the same transaction produce exactly one installment set;
  the loser sees ErrAlreadyGenerated or ErrConflict.

ROUNDING:
  agentCommission = commission x split / 100 is carried unrounded; each
  installment amount rounds half-up to the cent only at the final
  multiplication, so rounding error never compounds across installments.

REGENERATION:
  The only supported path to change a schedule after generation. Destroys
  installment-level audit state, so it is refused while any installment is
  already paid.
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// GENERATION
// =============================================================================

// GenerationResult is a generated batch plus an optional reconciliation
// warning for templates that predate write-time percentage validation.
type GenerationResult struct {
	Installments []CommissionInstallment

	// Warning is set when the schedule's percentages do not sum to 100 and
	// the generated amounts therefore do not reconcile with the agent
	// commission. Empty for valid templates.
	Warning string
}

// InstallmentService generates, regenerates and processes installments.
type InstallmentService struct {
	Store    Store
	Notifier Notifier
	Config   Config

	// Now is injectable for tests; defaults to Today.
	Now func() time.Time
}

func NewInstallmentService(store Store, notifier Notifier, cfg Config) *InstallmentService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &InstallmentService{Store: store, Notifier: notifier, Config: cfg, Now: Today}
}

// Expand computes the installment rows for a transaction against a schedule
// without touching the store. Pure; exposed for the approval trigger and for
// tests.
func (s *InstallmentService) Expand(txn Transaction, schedule PaymentScheduleTemplate) (GenerationResult, error) {
	if txn.CommissionAmount.IsNegative() {
		return GenerationResult{}, &ValidationError{Field: "commission_amount", Message: "must be non-negative"}
	}
	if len(schedule.Installments) == 0 {
		return GenerationResult{}, &ValidationError{Field: "schedule", Message: "must contain at least one installment"}
	}

	split := txn.SplitPercent
	if split.IsZero() {
		split = s.Config.DefaultSplitPercent
	}

	// Carried unrounded; rounding happens per installment below.
	agentCommission := Percent(txn.CommissionAmount, split)

	now := s.Now()
	var out []CommissionInstallment
	for _, tpl := range schedule.Sorted() {
		notes := tpl.Description
		if notes == "" {
			notes = fmt.Sprintf("Installment %d", tpl.Number)
		}
		out = append(out, CommissionInstallment{
			ID:            InstallmentID(uuid.NewString()),
			TransactionID: txn.ID,
			Number:        tpl.Number,
			AgentID:       txn.AgentID,
			Amount:        RoundCurrency(Percent(agentCommission, tpl.Percent)),
			Percent:       tpl.Percent,
			ScheduledDate: DayOf(txn.Date).AddDate(0, 0, tpl.DaysAfter),
			Status:        InstallmentPending,
			Notes:         notes,
			CreatedAt:     now,
		})
	}

	result := GenerationResult{Installments: out}
	if sum := schedule.PercentSum(); !sum.Equal(hundred) {
		result.Warning = fmt.Sprintf("schedule %s percentages sum to %s, not 100; amounts will not reconcile", schedule.ID, sum.String())
	}
	return result, nil
}

// Generate expands and persists the installment batch for a transaction.
// Fails with ErrAlreadyGenerated when the transaction is already flagged;
// callers must explicitly Regenerate to change a schedule.
func (s *InstallmentService) Generate(ctx context.Context, txID TransactionID) (GenerationResult, error) {
	txn, err := s.Store.GetTransaction(ctx, txID)
	if err != nil {
		return GenerationResult{}, err
	}
	if txn.InstallmentsGenerated {
		return GenerationResult{}, fmt.Errorf("transaction %s: %w", txID, ErrAlreadyGenerated)
	}

	schedule, err := s.resolveSchedule(ctx, txn)
	if err != nil {
		return GenerationResult{}, err
	}

	result, err := s.Expand(txn, schedule)
	if err != nil {
		return GenerationResult{}, err
	}

	// Check-and-set of the flag plus the batch insert happen inside one
	// store transaction; a concurrent winner surfaces here as
	// ErrAlreadyGenerated or ErrConflict with no rows written.
	if err := s.Store.CreateInstallments(ctx, txn.ID, result.Installments); err != nil {
		return GenerationResult{}, err
	}
	return result, nil
}

// Regenerate deletes all existing installments for the transaction,
// optionally reassigns the schedule, and generates again. Refused while any
// installment is already paid: regeneration would discard its audit state.
func (s *InstallmentService) Regenerate(ctx context.Context, txID TransactionID, newSchedule *ScheduleID) (GenerationResult, error) {
	if _, err := s.Store.GetTransaction(ctx, txID); err != nil {
		return GenerationResult{}, err
	}

	existing, err := s.Store.InstallmentsByTransaction(ctx, txID)
	if err != nil {
		return GenerationResult{}, err
	}
	for _, inst := range existing {
		if inst.Status == InstallmentPaid {
			return GenerationResult{}, fmt.Errorf("transaction %s installment %d: %w", txID, inst.Number, ErrInstallmentsPaid)
		}
	}

	if err := s.Store.ResetInstallments(ctx, txID, newSchedule); err != nil {
		return GenerationResult{}, err
	}
	return s.Generate(ctx, txID)
}

func (s *InstallmentService) resolveSchedule(ctx context.Context, txn Transaction) (PaymentScheduleTemplate, error) {
	if txn.ScheduleID != nil {
		return s.Store.GetSchedule(ctx, *txn.ScheduleID)
	}
	return s.Store.GetDefaultSchedule(ctx)
}

// =============================================================================
// PAYMENT PROCESSING
// =============================================================================

// Process records a status change on a single installment. Marking an
// installment paid stamps the actual payment date and emits a best-effort
// notification; a notifier failure never fails the payment itself.
func (s *InstallmentService) Process(ctx context.Context, id InstallmentID, status InstallmentStatus, notes string) (CommissionInstallment, error) {
	switch status {
	case InstallmentPending, InstallmentPaid, InstallmentOverdue:
	default:
		return CommissionInstallment{}, &ValidationError{Field: "status", Message: "unknown status " + string(status)}
	}

	inst, err := s.Store.GetInstallment(ctx, id)
	if err != nil {
		return CommissionInstallment{}, err
	}

	wasPaid := inst.Status == InstallmentPaid
	inst.Status = status
	if notes != "" {
		inst.Notes = notes
	}
	if status == InstallmentPaid && inst.PaidAt == nil {
		now := s.Now()
		inst.PaidAt = &now
	}
	if status != InstallmentPaid {
		inst.PaidAt = nil
	}

	if err := s.Store.UpdateInstallment(ctx, inst); err != nil {
		return CommissionInstallment{}, err
	}

	if status == InstallmentPaid && !wasPaid {
		_ = s.Notifier.InstallmentPaid(ctx, inst)
	}
	return inst, nil
}

// SweepOverdue marks pending installments whose scheduled date has passed as
// overdue and emits notifications. Returns the installments it flipped.
func (s *InstallmentService) SweepOverdue(ctx context.Context) ([]CommissionInstallment, error) {
	due, err := s.Store.DueInstallments(ctx, s.Now())
	if err != nil {
		return nil, err
	}

	var flipped []CommissionInstallment
	for _, inst := range due {
		inst.Status = InstallmentOverdue
		if err := s.Store.UpdateInstallment(ctx, inst); err != nil {
			return flipped, err
		}
		flipped = append(flipped, inst)
		_ = s.Notifier.InstallmentOverdue(ctx, inst)
	}
	return flipped, nil
}
