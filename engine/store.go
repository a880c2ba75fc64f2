/*
store.go - Persistence and notification interfaces

PURPOSE:
  Defines the boundary between the engine and the relational store. The
  engine's concurrency-sensitive operations are expressed as single atomic
  store calls so implementations can wrap them in one SQL transaction:

  - CreateInstallments: flips the installments_generated guard AND inserts
    the batch, all-or-nothing. Losers of a concurrent race get
    ErrAlreadyGenerated or ErrConflict; no partial installment rows survive.
  - UpdateApprovalStatus: writes status + history entry conditioned on the
    previously-read status (optimistic concurrency); losers get ErrConflict.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite (same patterns as PostgreSQL)
  - engine/store/memory.go:  in-memory for tests

SEE ALSO:
  - installment.go, approval.go: the services driving these interfaces
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

// AgentStore persists hierarchy nodes.
type AgentStore interface {
	GetAgent(ctx context.Context, id AgentID) (Agent, error)
	SaveAgent(ctx context.Context, a Agent) error
	ListAgents(ctx context.Context) ([]Agent, error)
}

// RankStore persists the data-driven rank table.
type RankStore interface {
	RankTable(ctx context.Context) (*RankTable, error)
	SaveRankDefinitions(ctx context.Context, defs []RankDefinition) error
}

// ScheduleStore persists payment schedule templates.
type ScheduleStore interface {
	GetSchedule(ctx context.Context, id ScheduleID) (PaymentScheduleTemplate, error)

	// GetDefaultSchedule resolves the template flagged is_default. Exactly
	// one must exist; ErrNoDefaultSchedule otherwise.
	GetDefaultSchedule(ctx context.Context) (PaymentScheduleTemplate, error)

	SaveSchedule(ctx context.Context, t PaymentScheduleTemplate) error
	ListSchedules(ctx context.Context) ([]PaymentScheduleTemplate, error)
}

// TransactionStore persists transactions.
type TransactionStore interface {
	GetTransaction(ctx context.Context, id TransactionID) (Transaction, error)
	SaveTransaction(ctx context.Context, t Transaction) error
	ListTransactionsByAgent(ctx context.Context, agentID AgentID) ([]Transaction, error)
}

// InstallmentStore reads and mutates individual installments.
type InstallmentStore interface {
	GetInstallment(ctx context.Context, id InstallmentID) (CommissionInstallment, error)
	InstallmentsByTransaction(ctx context.Context, txID TransactionID) ([]CommissionInstallment, error)
	InstallmentsByAgent(ctx context.Context, agentID AgentID) ([]CommissionInstallment, error)

	// DueInstallments returns pending installments scheduled strictly
	// before the given day. Used by the overdue sweep.
	DueInstallments(ctx context.Context, before time.Time) ([]CommissionInstallment, error)

	// UpdateInstallment persists payment-processing mutations (status,
	// paid_at, notes). It never changes amount or scheduled date.
	UpdateInstallment(ctx context.Context, inst CommissionInstallment) error
}

// GenerationStore carries the two operations whose atomicity the generator
// depends on.
type GenerationStore interface {
	// CreateInstallments atomically checks-and-sets the transaction's
	// installments_generated flag and inserts the batch. Returns
	// ErrAlreadyGenerated when the flag is already set, ErrConflict when a
	// concurrent generation won the race, and leaves no rows behind on any
	// failure.
	CreateInstallments(ctx context.Context, txID TransactionID, batch []CommissionInstallment) error

	// ResetInstallments deletes all installments for the transaction,
	// optionally reassigns the schedule, and clears the generated flag, as
	// one unit.
	ResetInstallments(ctx context.Context, txID TransactionID, newSchedule *ScheduleID) error
}

// ApprovalStore persists approval records and their append-only history.
type ApprovalStore interface {
	GetApproval(ctx context.Context, id ApprovalID) (CommissionApproval, error)
	GetApprovalByTransaction(ctx context.Context, txID TransactionID) (CommissionApproval, error)

	// CreateApproval inserts the record and its opening history entry as
	// one unit.
	CreateApproval(ctx context.Context, a CommissionApproval, opening ApprovalHistoryEntry) error

	// UpdateApprovalStatus writes the new status and appends the history
	// entry, conditioned on the record still holding the from status.
	// ErrConflict when the condition fails; status and history commit or
	// fail together.
	UpdateApprovalStatus(ctx context.Context, id ApprovalID, from, to ApprovalStatus, entry ApprovalHistoryEntry) error

	ApprovalHistory(ctx context.Context, id ApprovalID) ([]ApprovalHistoryEntry, error)
	ListApprovalsByStatus(ctx context.Context, status ApprovalStatus) ([]CommissionApproval, error)
}

// ConfigStore persists named engine configuration.
type ConfigStore interface {
	GetCutoffDay(ctx context.Context) (int, error)
	SetCutoffDay(ctx context.Context, day int) error
}

// Store is the full persistence surface the services expect.
type Store interface {
	AgentStore
	RankStore
	ScheduleStore
	TransactionStore
	InstallmentStore
	GenerationStore
	ApprovalStore
	ConfigStore
}

// =============================================================================
// NOTIFIER - External notification collaborator
// =============================================================================

// Notifier is the outbound notification collaborator. Delivery failures are
// reported but do not abort the triggering operation; the engine's state
// changes are the source of truth, notifications are best-effort.
type Notifier interface {
	InstallmentPaid(ctx context.Context, inst CommissionInstallment) error
	InstallmentOverdue(ctx context.Context, inst CommissionInstallment) error
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) InstallmentPaid(context.Context, CommissionInstallment) error    { return nil }
func (NopNotifier) InstallmentOverdue(context.Context, CommissionInstallment) error { return nil }
