/*
approval.go - Commission approval lifecycle

PURPOSE:
  Governs the controlled lifecycle of a commission approval record with an
  auditable, append-only history.

STATE MACHINE:

  Pending ──▶ Under Review ──▶ Approved ──▶ Ready for Payment ──▶ Paid
     │             │               │               │
     └─────────────┴───────────────┴───────────────┴──▶ Rejected

  The forward chain is strictly ordered: a transition must name either the
  immediate successor of the current status, or Rejected from any
  non-terminal status. Paid and Rejected are terminal.

HISTORY:
  Every successful transition appends a history entry carrying the prior and
  new status. Status and history commit or fail together - no orphaned
  history (ApprovalStore.UpdateApprovalStatus is one atomic store call).

CONCURRENCY:
  Transitions are serialized per record via optimistic concurrency: the
  write is conditioned on the status the caller read. The loser of a race
  gets ErrConflict and may re-read and retry.

SIDE EFFECTS:
  Entering Ready for Payment triggers installment generation when the
  transaction has none yet. Generation failure fails the transition itself;
  the status does not advance past a broken generation.
*/
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// STATUSES
// =============================================================================

type ApprovalStatus string

const (
	ApprovalPending         ApprovalStatus = "pending"
	ApprovalUnderReview     ApprovalStatus = "under_review"
	ApprovalApproved        ApprovalStatus = "approved"
	ApprovalReadyForPayment ApprovalStatus = "ready_for_payment"
	ApprovalPaid            ApprovalStatus = "paid"
	ApprovalRejected        ApprovalStatus = "rejected"
)

// forwardChain is the strictly ordered happy path.
var forwardChain = []ApprovalStatus{
	ApprovalPending,
	ApprovalUnderReview,
	ApprovalApproved,
	ApprovalReadyForPayment,
	ApprovalPaid,
}

// IsTerminal reports whether no further transitions are permitted.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalPaid || s == ApprovalRejected
}

// Next returns the immediate successor in the forward chain, or "" for
// terminal and unknown statuses.
func (s ApprovalStatus) Next() ApprovalStatus {
	for i, st := range forwardChain {
		if st == s && i+1 < len(forwardChain) {
			return forwardChain[i+1]
		}
	}
	return ""
}

// CanTransition reports whether from -> to is a permitted transition.
func CanTransition(from, to ApprovalStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == ApprovalRejected {
		return true
	}
	return from.Next() == to
}

// =============================================================================
// RECORDS
// =============================================================================

// CommissionApproval is the approval record opened for a transaction.
// CommissionAmount is a denormalized snapshot taken at submission.
type CommissionApproval struct {
	ID               ApprovalID
	TransactionID    TransactionID
	Status           ApprovalStatus
	SubmittedBy      string
	SubmittedAt      time.Time
	CommissionAmount Money
}

// ApprovalHistoryEntry is one immutable record in the approval audit log.
type ApprovalHistoryEntry struct {
	ID             string
	ApprovalID     ApprovalID
	PreviousStatus ApprovalStatus // empty on the opening entry
	NewStatus      ApprovalStatus
	Actor          string
	Notes          string
	At             time.Time
}

// =============================================================================
// SERVICE
// =============================================================================

// ApprovalService opens approval records and advances them through the
// lifecycle. Generator is consulted when a transition enters Ready for
// Payment.
type ApprovalService struct {
	Store     Store
	Generator *InstallmentService

	Now func() time.Time
}

func NewApprovalService(store Store, generator *InstallmentService) *ApprovalService {
	return &ApprovalService{Store: store, Generator: generator, Now: func() time.Time { return time.Now().UTC() }}
}

// Open creates an approval record in Pending for a transaction, snapshotting
// its commission amount, with the opening history entry.
func (as *ApprovalService) Open(ctx context.Context, txID TransactionID, submittedBy string) (CommissionApproval, error) {
	if txID == "" {
		return CommissionApproval{}, &ValidationError{Field: "transaction_id", Message: "is required"}
	}
	txn, err := as.Store.GetTransaction(ctx, txID)
	if err != nil {
		return CommissionApproval{}, err
	}

	now := as.Now()
	approval := CommissionApproval{
		ID:               ApprovalID(uuid.NewString()),
		TransactionID:    txn.ID,
		Status:           ApprovalPending,
		SubmittedBy:      submittedBy,
		SubmittedAt:      now,
		CommissionAmount: txn.CommissionAmount,
	}
	opening := ApprovalHistoryEntry{
		ID:         uuid.NewString(),
		ApprovalID: approval.ID,
		NewStatus:  ApprovalPending,
		Actor:      submittedBy,
		Notes:      "submitted",
		At:         now,
	}
	if err := as.Store.CreateApproval(ctx, approval, opening); err != nil {
		return CommissionApproval{}, err
	}
	return approval, nil
}

// Transition advances an approval to newStatus. The status write and its
// history entry are conditioned on the status read here; a concurrent
// transition surfaces as ErrConflict. Entering Ready for Payment first
// generates installments when the transaction has none; a generation
// failure aborts the transition.
func (as *ApprovalService) Transition(ctx context.Context, id ApprovalID, newStatus ApprovalStatus, actor, notes string) (CommissionApproval, error) {
	approval, err := as.Store.GetApproval(ctx, id)
	if err != nil {
		return CommissionApproval{}, err
	}

	if !CanTransition(approval.Status, newStatus) {
		return CommissionApproval{}, &InvalidTransitionError{From: approval.Status, To: newStatus}
	}

	if newStatus == ApprovalReadyForPayment && as.Generator != nil {
		if err := as.ensureInstallments(ctx, approval.TransactionID); err != nil {
			return CommissionApproval{}, err
		}
	}

	entry := ApprovalHistoryEntry{
		ID:             uuid.NewString(),
		ApprovalID:     approval.ID,
		PreviousStatus: approval.Status,
		NewStatus:      newStatus,
		Actor:          actor,
		Notes:          notes,
		At:             as.Now(),
	}
	if err := as.Store.UpdateApprovalStatus(ctx, approval.ID, approval.Status, newStatus, entry); err != nil {
		return CommissionApproval{}, err
	}

	approval.Status = newStatus
	return approval, nil
}

func (as *ApprovalService) ensureInstallments(ctx context.Context, txID TransactionID) error {
	txn, err := as.Store.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if txn.InstallmentsGenerated {
		return nil
	}
	_, err = as.Generator.Generate(ctx, txID)
	return err
}

// History returns the append-only audit log for an approval, oldest first.
func (as *ApprovalService) History(ctx context.Context, id ApprovalID) ([]ApprovalHistoryEntry, error) {
	if _, err := as.Store.GetApproval(ctx, id); err != nil {
		return nil, err
	}
	return as.Store.ApprovalHistory(ctx, id)
}
