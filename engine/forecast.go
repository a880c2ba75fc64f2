/*
forecast.go - Forward-looking cash-flow aggregation

PURPOSE:
  Buckets an agent's installments (confirmed and pending) into consecutive
  monthly cash-flow projections over a configurable horizon.

BUCKETING:
  An installment belongs to the fiscal month of its scheduled date: the
  calendar month, shifted to the following month when the day falls after
  the configured cutoff day (default 26). Installments outside the horizon
  window are ignored. Every month in the horizon is reported, zeros
  included - an empty month is a zero bucket, not an omission.

  expected  = all installment amounts in the bucket
  confirmed = the paid portion
  pending   = everything else (pending and overdue)

Read-only and side-effect free; safe under unbounded parallelism.
*/
package engine

import (
	"context"
	"time"
)

// ForecastPeriod is one monthly bucket of a forecast.
type ForecastPeriod struct {
	Month           Month
	ExpectedAmount  Money
	ConfirmedAmount Money
	PendingAmount   Money
}

// Forecast is the full projection for an agent.
type Forecast struct {
	AgentID       AgentID
	TotalExpected Money
	Periods       []ForecastPeriod
}

// ForecastAggregator computes monthly projections from stored installments.
type ForecastAggregator struct {
	Store  Store
	Config Config

	Now func() time.Time
}

func NewForecastAggregator(store Store, cfg Config) *ForecastAggregator {
	return &ForecastAggregator{Store: store, Config: cfg, Now: Today}
}

// Forecast builds horizonMonths consecutive monthly buckets starting at the
// current month. cutoffDay 0 means "use the persisted configuration, then
// the engine default".
func (fa *ForecastAggregator) Forecast(ctx context.Context, agentID AgentID, horizonMonths, cutoffDay int) (Forecast, error) {
	if agentID == "" {
		return Forecast{}, &ValidationError{Field: "agent_id", Message: "is required"}
	}
	if horizonMonths < 1 {
		return Forecast{}, &ValidationError{Field: "months", Message: "must be at least 1"}
	}

	if cutoffDay == 0 {
		stored, err := fa.Store.GetCutoffDay(ctx)
		if err == nil && stored >= 1 && stored <= 31 {
			cutoffDay = stored
		} else {
			cutoffDay = fa.Config.CutoffDay
		}
	}
	if cutoffDay < 1 || cutoffDay > 31 {
		return Forecast{}, &ValidationError{Field: "cutoff", Message: "must be between 1 and 31"}
	}

	installments, err := fa.Store.InstallmentsByAgent(ctx, agentID)
	if err != nil {
		return Forecast{}, err
	}

	start := MonthOf(fa.Now())
	buckets := make([]ForecastPeriod, horizonMonths)
	index := make(map[Month]int, horizonMonths)
	for i := 0; i < horizonMonths; i++ {
		m := start.AddMonths(i)
		buckets[i] = ForecastPeriod{Month: m}
		index[m] = i
	}

	total := Money{}
	for _, inst := range installments {
		m := FiscalMonth(inst.ScheduledDate, cutoffDay)
		i, ok := index[m]
		if !ok {
			continue // outside the horizon
		}
		buckets[i].ExpectedAmount = buckets[i].ExpectedAmount.Add(inst.Amount)
		if inst.Status == InstallmentPaid {
			buckets[i].ConfirmedAmount = buckets[i].ConfirmedAmount.Add(inst.Amount)
		} else {
			buckets[i].PendingAmount = buckets[i].PendingAmount.Add(inst.Amount)
		}
		total = total.Add(inst.Amount)
	}

	return Forecast{AgentID: agentID, TotalExpected: total, Periods: buckets}, nil
}
