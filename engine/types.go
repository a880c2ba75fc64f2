/*
Package engine provides the core commission distribution engine.

PURPOSE:
  This package contains the domain types and algorithms for commission
  administration: expanding payment schedule templates into dated
  installments, walking the agent reporting hierarchy to compute override
  commissions, advancing approval records through a controlled lifecycle,
  and aggregating installments into monthly cash-flow forecasts.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: currency amounts backed by decimal.Decimal
  - Agent / Rank / RankDefinition: the reporting hierarchy and its ordering
  - Transaction: a closed deal carrying the commission to be scheduled
  - CommissionInstallment: one dated, amount-bearing slice of a commission
  - OverrideCommission: a derived upline entitlement, recomputed on demand

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere money is touched; rounding happens
     once, at the final amount computation.
  2. Explicit configuration: cutoff day, default split and traversal depth
     are injected (Config), never read from process-wide state.
  3. Data-driven ranks: override percentages live in a RankTable, not code.

SEE ALSO:
  - hierarchy.go: override calculator
  - installment.go: schedule expansion
  - approval.go: approval lifecycle
  - forecast.go: cash-flow bucketing
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Currency amounts
// =============================================================================

// Money is a currency amount. The engine is currency-agnostic; all amounts
// in one deployment are assumed to share a currency.
type Money = decimal.Decimal

// NewMoney builds a Money value from a float. Test and seed data only;
// production paths parse strings or compute from other Money values.
func NewMoney(v float64) Money { return decimal.NewFromFloat(v) }

// ParseMoney parses a decimal string.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "amount", Message: "invalid decimal: " + s}
	}
	return d, nil
}

// MustParseMoney parses a decimal string, returning zero on failure.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// RoundCurrency rounds to the smallest currency unit, half away from zero.
// Applied exactly once per installment amount, after the full percentage
// chain has been multiplied out, so rounding error never compounds.
func RoundCurrency(m Money) Money { return m.Round(2) }

// Percent applies pct (0-100) to m without rounding.
func Percent(m Money, pct decimal.Decimal) Money {
	return m.Mul(pct).Div(decimal.NewFromInt(100))
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AgentID string
type TransactionID string
type ScheduleID string
type InstallmentID string
type ApprovalID string

// =============================================================================
// RANKS - Ordered seniority with override percentages
// =============================================================================

type Rank string

const (
	RankAdvisor          Rank = "advisor"
	RankSeniorAdvisor    Rank = "senior_advisor"
	RankTeamLeader       Rank = "team_leader"
	RankGroupLeader      Rank = "group_leader"
	RankRegionalDirector Rank = "regional_director"
)

// RankDefinition is immutable reference data: the override percentage an
// agent of this rank earns on downline production, and the ordering level
// used to decide override eligibility between hierarchy links.
type RankDefinition struct {
	Rank            Rank
	OverridePercent decimal.Decimal // 0-100
	Level           int             // strictly increasing with seniority
}

// RankTable is the data-driven rank lookup consumed by the override
// calculator. Replaces a fixed in-code mapping so percentages can change
// without redeployment.
type RankTable struct {
	defs map[Rank]RankDefinition
}

func NewRankTable(defs []RankDefinition) *RankTable {
	m := make(map[Rank]RankDefinition, len(defs))
	for _, d := range defs {
		m[d.Rank] = d
	}
	return &RankTable{defs: m}
}

// DefaultRankTable returns the stock agency ladder. Deployments normally
// load the table from the store instead.
func DefaultRankTable() *RankTable {
	return NewRankTable(DefaultRankDefinitions())
}

func DefaultRankDefinitions() []RankDefinition {
	return []RankDefinition{
		{Rank: RankAdvisor, OverridePercent: decimal.Zero, Level: 1},
		{Rank: RankSeniorAdvisor, OverridePercent: decimal.NewFromInt(2), Level: 2},
		{Rank: RankTeamLeader, OverridePercent: decimal.NewFromInt(5), Level: 3},
		{Rank: RankGroupLeader, OverridePercent: decimal.NewFromInt(8), Level: 4},
		{Rank: RankRegionalDirector, OverridePercent: decimal.NewFromInt(10), Level: 5},
	}
}

// Lookup returns the definition for a rank.
func (rt *RankTable) Lookup(r Rank) (RankDefinition, bool) {
	d, ok := rt.defs[r]
	return d, ok
}

// Definitions returns all definitions ordered by level.
func (rt *RankTable) Definitions() []RankDefinition {
	out := make([]RankDefinition, 0, len(rt.defs))
	for _, d := range rt.defs {
		out = append(out, d)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Level > out[j].Level; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// =============================================================================
// AGENTS - Hierarchy nodes
// =============================================================================

// Agent is a node in the reporting hierarchy. UplineID is a weak
// back-reference; the chain must be acyclic (guarded at traversal time by a
// depth bound, see hierarchy.go).
type Agent struct {
	ID       AgentID
	Name     string
	Rank     Rank
	UplineID *AgentID
	Active   bool

	CreatedAt time.Time
}

// =============================================================================
// TRANSACTIONS - Closed deals carrying commission
// =============================================================================

// Transaction is a closed deal. ScheduleID nil means "use the template
// flagged as default". SplitPercent defaults to Config.DefaultSplitPercent
// when zero.
type Transaction struct {
	ID               TransactionID
	AgentID          AgentID
	CommissionAmount Money
	Date             time.Time
	ScheduleID       *ScheduleID
	SplitPercent     decimal.Decimal

	// InstallmentsGenerated guards at-most-once generation. Checked and set
	// atomically with the installment batch insert (see store.go).
	InstallmentsGenerated bool

	CreatedAt time.Time
}

// =============================================================================
// INSTALLMENTS - Dated commission slices
// =============================================================================

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
	InstallmentOverdue InstallmentStatus = "overdue"
)

// CommissionInstallment is one dated portion of a transaction's agent
// commission. Created in bulk by the generator; mutated only by payment
// processing; deleted only as part of an explicit regeneration.
type CommissionInstallment struct {
	ID            InstallmentID
	TransactionID TransactionID
	Number        int
	AgentID       AgentID
	Amount        Money
	Percent       decimal.Decimal // template percentage snapshot, for audit
	ScheduledDate time.Time
	Status        InstallmentStatus
	PaidAt        *time.Time
	Notes         string

	CreatedAt time.Time
}

// =============================================================================
// OVERRIDE COMMISSIONS - Derived upline entitlements
// =============================================================================

// OverrideCommission is a derived entitlement for an upline agent, computed
// on demand from the hierarchy and the rank table. Not persisted; it has no
// independent lifecycle.
type OverrideCommission struct {
	AgentID     AgentID // the upline recipient
	BaseAgentID AgentID // whose production generated it
	Rank        Rank    // recipient rank at calculation time
	Percent     decimal.Decimal
	Amount      Money
}
