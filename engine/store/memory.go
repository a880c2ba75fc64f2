// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/commission-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements engine.Store with maps behind one mutex. The two
// concurrency-sensitive operations (CreateInstallments, UpdateApprovalStatus)
// run their check and write under the same lock, mirroring what the SQL
// implementation does with database transactions.
type Memory struct {
	mu sync.RWMutex

	agents       map[engine.AgentID]engine.Agent
	ranks        []engine.RankDefinition
	schedules    map[engine.ScheduleID]engine.PaymentScheduleTemplate
	transactions map[engine.TransactionID]engine.Transaction
	installments map[engine.InstallmentID]engine.CommissionInstallment
	approvals    map[engine.ApprovalID]engine.CommissionApproval
	history      map[engine.ApprovalID][]engine.ApprovalHistoryEntry
	cutoffDay    int
}

var _ engine.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		agents:       make(map[engine.AgentID]engine.Agent),
		ranks:        engine.DefaultRankDefinitions(),
		schedules:    make(map[engine.ScheduleID]engine.PaymentScheduleTemplate),
		transactions: make(map[engine.TransactionID]engine.Transaction),
		installments: make(map[engine.InstallmentID]engine.CommissionInstallment),
		approvals:    make(map[engine.ApprovalID]engine.CommissionApproval),
		history:      make(map[engine.ApprovalID][]engine.ApprovalHistoryEntry),
		cutoffDay:    engine.DefaultCutoffDay,
	}
}

// =============================================================================
// AGENTS & RANKS
// =============================================================================

func (m *Memory) GetAgent(_ context.Context, id engine.AgentID) (engine.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return engine.Agent{}, fmt.Errorf("agent %s: %w", id, engine.ErrNotFound)
	}
	return a, nil
}

func (m *Memory) SaveAgent(_ context.Context, a engine.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.ID] = a
	return nil
}

func (m *Memory) ListAgents(_ context.Context) ([]engine.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) RankTable(_ context.Context) (*engine.RankTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return engine.NewRankTable(m.ranks), nil
}

func (m *Memory) SaveRankDefinitions(_ context.Context, defs []engine.RankDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ranks = append([]engine.RankDefinition(nil), defs...)
	return nil
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (m *Memory) GetSchedule(_ context.Context, id engine.ScheduleID) (engine.PaymentScheduleTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.schedules[id]
	if !ok {
		return engine.PaymentScheduleTemplate{}, fmt.Errorf("schedule %s: %w", id, engine.ErrNotFound)
	}
	return t, nil
}

func (m *Memory) GetDefaultSchedule(_ context.Context) (engine.PaymentScheduleTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.schedules {
		if t.IsDefault {
			return t, nil
		}
	}
	return engine.PaymentScheduleTemplate{}, engine.ErrNoDefaultSchedule
}

func (m *Memory) SaveSchedule(_ context.Context, t engine.PaymentScheduleTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.IsDefault {
		// Single default invariant: saving a new default clears the old one.
		for id, other := range m.schedules {
			if other.IsDefault && id != t.ID {
				other.IsDefault = false
				m.schedules[id] = other
			}
		}
	}
	m.schedules[t.ID] = t
	return nil
}

func (m *Memory) ListSchedules(_ context.Context) ([]engine.PaymentScheduleTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.PaymentScheduleTemplate, 0, len(m.schedules))
	for _, t := range m.schedules {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (m *Memory) GetTransaction(_ context.Context, id engine.TransactionID) (engine.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transactions[id]
	if !ok {
		return engine.Transaction{}, fmt.Errorf("transaction %s: %w", id, engine.ErrNotFound)
	}
	return t, nil
}

func (m *Memory) SaveTransaction(_ context.Context, t engine.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[t.ID] = t
	return nil
}

func (m *Memory) ListTransactionsByAgent(_ context.Context, agentID engine.AgentID) ([]engine.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Transaction
	for _, t := range m.transactions {
		if t.AgentID == agentID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

func (m *Memory) GetInstallment(_ context.Context, id engine.InstallmentID) (engine.CommissionInstallment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.installments[id]
	if !ok {
		return engine.CommissionInstallment{}, fmt.Errorf("installment %s: %w", id, engine.ErrNotFound)
	}
	return inst, nil
}

func (m *Memory) InstallmentsByTransaction(_ context.Context, txID engine.TransactionID) ([]engine.CommissionInstallment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.CommissionInstallment
	for _, inst := range m.installments {
		if inst.TransactionID == txID {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *Memory) InstallmentsByAgent(_ context.Context, agentID engine.AgentID) ([]engine.CommissionInstallment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.CommissionInstallment
	for _, inst := range m.installments {
		if inst.AgentID == agentID {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	return out, nil
}

func (m *Memory) DueInstallments(_ context.Context, before time.Time) ([]engine.CommissionInstallment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.CommissionInstallment
	for _, inst := range m.installments {
		if inst.Status == engine.InstallmentPending && inst.ScheduledDate.Before(before) {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	return out, nil
}

func (m *Memory) UpdateInstallment(_ context.Context, inst engine.CommissionInstallment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.installments[inst.ID]; !ok {
		return fmt.Errorf("installment %s: %w", inst.ID, engine.ErrNotFound)
	}
	m.installments[inst.ID] = inst
	return nil
}

// CreateInstallments is the atomic check-and-set plus batch insert. Under
// the single lock, a concurrent second caller observes the flag already set.
func (m *Memory) CreateInstallments(_ context.Context, txID engine.TransactionID, batch []engine.CommissionInstallment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.transactions[txID]
	if !ok {
		return fmt.Errorf("transaction %s: %w", txID, engine.ErrNotFound)
	}
	if txn.InstallmentsGenerated {
		return fmt.Errorf("transaction %s: %w", txID, engine.ErrAlreadyGenerated)
	}

	for _, inst := range batch {
		m.installments[inst.ID] = inst
	}
	txn.InstallmentsGenerated = true
	m.transactions[txID] = txn
	return nil
}

func (m *Memory) ResetInstallments(_ context.Context, txID engine.TransactionID, newSchedule *engine.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.transactions[txID]
	if !ok {
		return fmt.Errorf("transaction %s: %w", txID, engine.ErrNotFound)
	}

	for id, inst := range m.installments {
		if inst.TransactionID == txID {
			delete(m.installments, id)
		}
	}
	if newSchedule != nil {
		txn.ScheduleID = newSchedule
	}
	txn.InstallmentsGenerated = false
	m.transactions[txID] = txn
	return nil
}

// =============================================================================
// APPROVALS
// =============================================================================

func (m *Memory) GetApproval(_ context.Context, id engine.ApprovalID) (engine.CommissionApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.approvals[id]
	if !ok {
		return engine.CommissionApproval{}, fmt.Errorf("approval %s: %w", id, engine.ErrNotFound)
	}
	return a, nil
}

func (m *Memory) GetApprovalByTransaction(_ context.Context, txID engine.TransactionID) (engine.CommissionApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.approvals {
		if a.TransactionID == txID {
			return a, nil
		}
	}
	return engine.CommissionApproval{}, fmt.Errorf("approval for transaction %s: %w", txID, engine.ErrNotFound)
}

func (m *Memory) CreateApproval(_ context.Context, a engine.CommissionApproval, opening engine.ApprovalHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals[a.ID] = a
	m.history[a.ID] = append(m.history[a.ID], opening)
	return nil
}

// UpdateApprovalStatus is the optimistic-concurrency write: status change
// and history append happen together, conditioned on the from status.
func (m *Memory) UpdateApprovalStatus(_ context.Context, id engine.ApprovalID, from, to engine.ApprovalStatus, entry engine.ApprovalHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.approvals[id]
	if !ok {
		return fmt.Errorf("approval %s: %w", id, engine.ErrNotFound)
	}
	if a.Status != from {
		return fmt.Errorf("approval %s status is %s, expected %s: %w", id, a.Status, from, engine.ErrConflict)
	}

	a.Status = to
	m.approvals[id] = a
	m.history[id] = append(m.history[id], entry)
	return nil
}

func (m *Memory) ApprovalHistory(_ context.Context, id engine.ApprovalID) ([]engine.ApprovalHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.ApprovalHistoryEntry, len(m.history[id]))
	copy(out, m.history[id])
	return out, nil
}

func (m *Memory) ListApprovalsByStatus(_ context.Context, status engine.ApprovalStatus) ([]engine.CommissionApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.CommissionApproval
	for _, a := range m.approvals {
		if a.Status == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

// =============================================================================
// CONFIG
// =============================================================================

func (m *Memory) GetCutoffDay(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cutoffDay, nil
}

func (m *Memory) SetCutoffDay(_ context.Context, day int) error {
	if day < 1 || day > 31 {
		return &engine.ValidationError{Field: "cutoff_day", Message: "must be between 1 and 31"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffDay = day
	return nil
}
