/*
Package factory provides JSON to Go configuration conversion.

PURPOSE:
  Converts JSON payment schedule and rank table definitions into engine
  structs. This enables commission configuration without code changes -
  finance can define schedules and rank overrides in JSON, and the
  factory creates the proper Go structs.

WHY JSON?
  - Non-developers can modify payout terms
  - Easy integration with admin UI
  - Version control for schedule definitions
  - Database storage of configuration

JSON SCHEMA (schedule):
  {
    "id": "standard-3-part",
    "name": "Standard 3-Part",
    "description": "50/30/20 over two months",
    "is_default": true,
    "installments": [
      {"number": 1, "percent": 50, "days_after": 0},
      {"number": 2, "percent": 30, "days_after": 30},
      {"number": 3, "percent": 20, "days_after": 60}
    ]
  }

JSON SCHEMA (rank table):
  {
    "ranks": [
      {"rank": "Advisor", "override_percent": 0, "level": 1},
      {"rank": "Team Leader", "override_percent": 5, "level": 3}
    ]
  }

KEY FEATURES:
  - Struct-tag validation (go-playground/validator)
  - Enforces the 100% installment sum invariant via engine validation
  - Sets sensible defaults (created_at, descriptions)

USAGE:
  factory := NewScheduleFactory()
  tpl, err := factory.ParseSchedule(jsonString)

SEE ALSO:
  - engine/schedule.go: PaymentScheduleTemplate definition and validation
  - engine/types.go:    RankDefinition and RankTable
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ScheduleJSON is the JSON representation of a payment schedule template.
type ScheduleJSON struct {
	ID           string            `json:"id" validate:"required"`
	Name         string            `json:"name" validate:"required"`
	Description  string            `json:"description,omitempty"`
	IsDefault    bool              `json:"is_default,omitempty"`
	Installments []InstallmentJSON `json:"installments" validate:"required,min=1,dive"`
}

// InstallmentJSON is one installment row of a schedule.
type InstallmentJSON struct {
	Number      int             `json:"number" validate:"required,min=1"`
	Percent     decimal.Decimal `json:"percent" validate:"required"`
	DaysAfter   int             `json:"days_after" validate:"min=0"`
	Description string          `json:"description,omitempty"`
}

// RankTableJSON is the JSON representation of the rank override table.
type RankTableJSON struct {
	Ranks []RankJSON `json:"ranks" validate:"required,min=1,dive"`
}

// RankJSON is one rank definition row.
type RankJSON struct {
	Rank            string          `json:"rank" validate:"required"`
	OverridePercent decimal.Decimal `json:"override_percent"`
	Level           int             `json:"level" validate:"required,min=1"`
}

// =============================================================================
// SCHEDULE FACTORY
// =============================================================================

// ScheduleFactory converts JSON configuration into engine structs.
type ScheduleFactory struct {
	validate *validator.Validate
}

// NewScheduleFactory creates a new schedule factory.
func NewScheduleFactory() *ScheduleFactory {
	return &ScheduleFactory{validate: validator.New()}
}

// ParseSchedule converts a JSON schedule definition into a
// PaymentScheduleTemplate. Both struct-tag validation and the engine's
// semantic validation (unique numbers, percents sum to 100) must pass.
func (f *ScheduleFactory) ParseSchedule(jsonStr string) (engine.PaymentScheduleTemplate, error) {
	var sj ScheduleJSON
	if err := json.Unmarshal([]byte(jsonStr), &sj); err != nil {
		return engine.PaymentScheduleTemplate{}, fmt.Errorf("invalid schedule JSON: %w", err)
	}
	if err := f.validate.Struct(sj); err != nil {
		return engine.PaymentScheduleTemplate{}, fmt.Errorf("schedule validation: %w", err)
	}

	tpl := engine.PaymentScheduleTemplate{
		ID:          engine.ScheduleID(sj.ID),
		Name:        sj.Name,
		Description: sj.Description,
		IsDefault:   sj.IsDefault,
		CreatedAt:   time.Now().UTC(),
	}
	for _, row := range sj.Installments {
		tpl.Installments = append(tpl.Installments, engine.InstallmentTemplate{
			Number:      row.Number,
			Percent:     row.Percent,
			DaysAfter:   row.DaysAfter,
			Description: row.Description,
		})
	}

	if err := tpl.Validate(); err != nil {
		return engine.PaymentScheduleTemplate{}, err
	}
	return tpl, nil
}

// ParseRankTable converts a JSON rank table into rank definitions.
func (f *ScheduleFactory) ParseRankTable(jsonStr string) ([]engine.RankDefinition, error) {
	var rj RankTableJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return nil, fmt.Errorf("invalid rank table JSON: %w", err)
	}
	if err := f.validate.Struct(rj); err != nil {
		return nil, fmt.Errorf("rank table validation: %w", err)
	}

	seen := make(map[int]string, len(rj.Ranks))
	defs := make([]engine.RankDefinition, 0, len(rj.Ranks))
	for _, row := range rj.Ranks {
		if row.OverridePercent.IsNegative() || row.OverridePercent.GreaterThan(decimal.NewFromInt(100)) {
			return nil, &engine.ValidationError{
				Field:   "override_percent",
				Message: fmt.Sprintf("rank %s: must be between 0 and 100", row.Rank),
			}
		}
		if other, dup := seen[row.Level]; dup {
			return nil, &engine.ValidationError{
				Field:   "level",
				Message: fmt.Sprintf("ranks %s and %s share level %d", other, row.Rank, row.Level),
			}
		}
		seen[row.Level] = row.Rank
		defs = append(defs, engine.RankDefinition{
			Rank:            engine.Rank(row.Rank),
			OverridePercent: row.OverridePercent,
			Level:           row.Level,
		})
	}
	return defs, nil
}

// =============================================================================
// PRESETS
// =============================================================================

// StandardScheduleJSON builds the 50/30/20 two-month schedule definition.
func StandardScheduleJSON(id, name string, isDefault bool) string {
	sj := ScheduleJSON{
		ID:          id,
		Name:        name,
		Description: "50% on close, 30% after 30 days, 20% after 60 days",
		IsDefault:   isDefault,
		Installments: []InstallmentJSON{
			{Number: 1, Percent: decimal.NewFromInt(50), DaysAfter: 0, Description: "On closing"},
			{Number: 2, Percent: decimal.NewFromInt(30), DaysAfter: 30, Description: "30 days after closing"},
			{Number: 3, Percent: decimal.NewFromInt(20), DaysAfter: 60, Description: "60 days after closing"},
		},
	}
	b, _ := json.Marshal(sj)
	return string(b)
}

// UpfrontScheduleJSON builds a single-installment schedule definition.
func UpfrontScheduleJSON(id, name string) string {
	sj := ScheduleJSON{
		ID:          id,
		Name:        name,
		Description: "Full commission on closing",
		Installments: []InstallmentJSON{
			{Number: 1, Percent: decimal.NewFromInt(100), DaysAfter: 0, Description: "On closing"},
		},
	}
	b, _ := json.Marshal(sj)
	return string(b)
}

// MonthlyScheduleJSON builds an equal-split schedule over n months. The last
// installment absorbs the remainder so the percents still sum to 100.
func MonthlyScheduleJSON(id, name string, months int) string {
	if months < 1 {
		months = 1
	}
	even := decimal.NewFromInt(100).DivRound(decimal.NewFromInt(int64(months)), 2)
	rows := make([]InstallmentJSON, 0, months)
	remaining := decimal.NewFromInt(100)
	for i := 1; i <= months; i++ {
		pct := even
		if i == months {
			pct = remaining
		}
		rows = append(rows, InstallmentJSON{
			Number:      i,
			Percent:     pct,
			DaysAfter:   (i - 1) * 30,
			Description: fmt.Sprintf("Month %d", i),
		})
		remaining = remaining.Sub(pct)
	}
	sj := ScheduleJSON{ID: id, Name: name, Installments: rows}
	b, _ := json.Marshal(sj)
	return string(b)
}
