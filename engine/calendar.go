package engine

import "time"

// =============================================================================
// CALENDAR - Day-granularity date helpers and fiscal-month assignment
// =============================================================================

// Date normalizes a time to day granularity in UTC. All scheduled dates in
// the engine are day-granular.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DayOf truncates t to day granularity in UTC.
func DayOf(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// Today returns the current day in UTC.
func Today() time.Time {
	return DayOf(time.Now().UTC())
}

// Month identifies a calendar month bucket.
type Month struct {
	Year  int
	Month time.Month
}

func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

func (m Month) AddMonths(n int) Month {
	t := Date(m.Year, m.Month, 1).AddDate(0, n, 0)
	return MonthOf(t)
}

func (m Month) String() string {
	return Date(m.Year, m.Month, 1).Format("2006-01")
}

// FiscalMonth assigns a scheduled date to a billing/forecast month using the
// configured cutoff day: dates after the cutoff day of month M belong to
// month M+1. cutoffDay outside 1-31 falls back to DefaultCutoffDay.
func FiscalMonth(scheduled time.Time, cutoffDay int) Month {
	if cutoffDay < 1 || cutoffDay > 31 {
		cutoffDay = DefaultCutoffDay
	}
	m := MonthOf(scheduled)
	if scheduled.Day() > cutoffDay {
		return m.Next()
	}
	return m
}
