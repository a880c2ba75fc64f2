package engine

import "github.com/shopspring/decimal"

// =============================================================================
// CONFIG - Injected engine configuration
// =============================================================================

const (
	// DefaultCutoffDay is the day-of-month boundary deciding whether an
	// installment's scheduled date belongs to the current or next fiscal
	// month.
	DefaultCutoffDay = 26

	// DefaultSplitPercent is the agent's share of a transaction commission
	// when the transaction does not specify one.
	DefaultSplitPercent = 70

	// DefaultMaxHierarchyDepth bounds the upline walk. A chain deeper than
	// this is treated as malformed (likely cyclic) data.
	DefaultMaxHierarchyDepth = 25
)

// Config carries the engine's global knobs. It is passed into the services
// explicitly so the engine stays testable in isolation; nothing in this
// package reads process-wide state.
type Config struct {
	CutoffDay           int
	DefaultSplitPercent decimal.Decimal
	MaxHierarchyDepth   int
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		CutoffDay:           DefaultCutoffDay,
		DefaultSplitPercent: decimal.NewFromInt(DefaultSplitPercent),
		MaxHierarchyDepth:   DefaultMaxHierarchyDepth,
	}
}

// Validate rejects out-of-range knobs.
func (c Config) Validate() error {
	if c.CutoffDay < 1 || c.CutoffDay > 31 {
		return &ValidationError{Field: "cutoff_day", Message: "must be between 1 and 31"}
	}
	if c.DefaultSplitPercent.IsNegative() || c.DefaultSplitPercent.GreaterThan(decimal.NewFromInt(100)) {
		return &ValidationError{Field: "default_split_percent", Message: "must be between 0 and 100"}
	}
	if c.MaxHierarchyDepth < 1 {
		return &ValidationError{Field: "max_hierarchy_depth", Message: "must be positive"}
	}
	return nil
}
