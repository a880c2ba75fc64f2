/*
schedule.go - Payment schedule templates

PURPOSE:
  A PaymentScheduleTemplate is a named, reusable definition of how a
  commission splits into dated installments: each InstallmentTemplate carries
  a percentage of the agent commission and a day offset from the transaction
  date.

THE 100% INVARIANT:
  Installment percentages must sum to exactly 100 so generated amounts
  reconcile with the agent commission. Validate enforces this at write time.
  The generator re-checks at generation time and attaches a reconciliation
  warning instead of failing, because legacy rows may predate write-time
  validation (see installment.go).
*/
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentTemplate is one fraction of a payment schedule.
type InstallmentTemplate struct {
	Number      int             // 1-based, unique within the template
	Percent     decimal.Decimal // 0-100
	DaysAfter   int             // >= 0, offset from transaction date
	Description string
}

// PaymentScheduleTemplate is a reusable installment plan. Exactly one
// template per active configuration carries IsDefault.
type PaymentScheduleTemplate struct {
	ID           ScheduleID
	Name         string
	Description  string
	IsDefault    bool
	Installments []InstallmentTemplate

	CreatedAt time.Time
}

// =============================================================================
// VALIDATION
// =============================================================================

var hundred = decimal.NewFromInt(100)

// Validate checks the template's structural invariants: at least one
// installment, unique positive numbers, percentages in range and summing to
// exactly 100, non-negative day offsets.
func (t PaymentScheduleTemplate) Validate() error {
	if t.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if len(t.Installments) == 0 {
		return &ValidationError{Field: "installments", Message: "must contain at least one installment"}
	}

	seen := make(map[int]bool, len(t.Installments))
	sum := decimal.Zero
	for _, it := range t.Installments {
		if it.Number < 1 {
			return &ValidationError{Field: "installments", Message: fmt.Sprintf("installment number %d must be >= 1", it.Number)}
		}
		if seen[it.Number] {
			return &ValidationError{Field: "installments", Message: fmt.Sprintf("duplicate installment number %d", it.Number)}
		}
		seen[it.Number] = true
		if it.Percent.IsNegative() || it.Percent.GreaterThan(hundred) {
			return &ValidationError{Field: "installments", Message: fmt.Sprintf("installment %d percentage out of range", it.Number)}
		}
		if it.DaysAfter < 0 {
			return &ValidationError{Field: "installments", Message: fmt.Sprintf("installment %d day offset must be >= 0", it.Number)}
		}
		sum = sum.Add(it.Percent)
	}

	if !sum.Equal(hundred) {
		return &ValidationError{
			Field:   "installments",
			Message: fmt.Sprintf("percentages sum to %s, expected 100", sum.String()),
		}
	}
	return nil
}

// PercentSum returns the total of all installment percentages.
func (t PaymentScheduleTemplate) PercentSum() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range t.Installments {
		sum = sum.Add(it.Percent)
	}
	return sum
}

// Sorted returns the installment templates in installment-number order.
// Callers are not required to pre-sort.
func (t PaymentScheduleTemplate) Sorted() []InstallmentTemplate {
	out := make([]InstallmentTemplate, len(t.Installments))
	copy(out, t.Installments)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
