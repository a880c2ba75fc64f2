/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY FIELDS:
  Amounts and percents travel as JSON strings ("3500.00") so clients never
  see binary-float artifacts. shopspring/decimal marshals to a bare number
  by default; the DTOs format explicitly.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/schedule.go: ScheduleJSON type
*/
package api

import (
	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/factory"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// AgentDTO represents an agent in API responses.
type AgentDTO struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Rank      string  `json:"rank"`
	UplineID  *string `json:"upline_id,omitempty"`
	Active    bool    `json:"active"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// CreateAgentRequest is the request to create an agent.
type CreateAgentRequest struct {
	ID       string  `json:"id"`
	Name     string  `json:"name" validate:"required"`
	Rank     string  `json:"rank" validate:"required"`
	UplineID *string `json:"upline_id,omitempty"`
}

// RankDTO represents one row of the rank override table.
type RankDTO struct {
	Rank            string `json:"rank"`
	OverridePercent string `json:"override_percent"`
	Level           int    `json:"level"`
}

// ScheduleDTO represents a payment schedule template in API responses.
type ScheduleDTO struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	IsDefault    bool             `json:"is_default"`
	Installments []ScheduleRowDTO `json:"installments"`
	CreatedAt    string           `json:"created_at,omitempty"`
}

// ScheduleRowDTO is one installment row of a schedule template.
type ScheduleRowDTO struct {
	Number      int    `json:"number"`
	Percent     string `json:"percent"`
	DaysAfter   int    `json:"days_after"`
	Description string `json:"description,omitempty"`
}

// CreateScheduleRequest wraps the factory JSON schema.
type CreateScheduleRequest = factory.ScheduleJSON

// TransactionDTO represents a commission transaction.
type TransactionDTO struct {
	ID                    string  `json:"id"`
	AgentID               string  `json:"agent_id"`
	CommissionAmount      string  `json:"commission_amount"`
	Date                  string  `json:"date"`
	ScheduleID            *string `json:"schedule_id,omitempty"`
	SplitPercent          string  `json:"split_percent"`
	InstallmentsGenerated bool    `json:"installments_generated"`
	CreatedAt             string  `json:"created_at,omitempty"`
}

// CreateTransactionRequest is the request to record a commission transaction.
type CreateTransactionRequest struct {
	ID               string  `json:"id"`
	AgentID          string  `json:"agent_id" validate:"required"`
	CommissionAmount string  `json:"commission_amount" validate:"required"`
	Date             string  `json:"date" validate:"required"` // YYYY-MM-DD
	ScheduleID       *string `json:"schedule_id,omitempty"`
	SplitPercent     string  `json:"split_percent,omitempty"`
}

// InstallmentDTO represents a generated commission installment.
type InstallmentDTO struct {
	ID            string  `json:"id"`
	TransactionID string  `json:"transaction_id"`
	Number        int     `json:"number"`
	AgentID       string  `json:"agent_id"`
	Amount        string  `json:"amount"`
	Percent       string  `json:"percent"`
	ScheduledDate string  `json:"scheduled_date"`
	Status        string  `json:"status"`
	PaidAt        *string `json:"paid_at,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// GenerateResponse is returned when installments are generated.
type GenerateResponse struct {
	Installments []InstallmentDTO `json:"installments"`
	Warning      string           `json:"warning,omitempty"`
}

// RegenerateRequest optionally reassigns the schedule before regeneration.
type RegenerateRequest struct {
	ScheduleID *string `json:"schedule_id,omitempty"`
}

// ProcessInstallmentRequest updates a single installment's payment state.
type ProcessInstallmentRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes,omitempty"`
}

// OverrideDTO represents one upline override commission.
type OverrideDTO struct {
	AgentID string `json:"agent_id"`
	Rank    string `json:"rank"`
	Percent string `json:"percent"`
	Amount  string `json:"amount"`
}

// ApprovalDTO represents an approval workflow record.
type ApprovalDTO struct {
	ID               string `json:"id"`
	TransactionID    string `json:"transaction_id"`
	Status           string `json:"status"`
	SubmittedBy      string `json:"submitted_by"`
	SubmittedAt      string `json:"submitted_at"`
	CommissionAmount string `json:"commission_amount"`
}

// OpenApprovalRequest submits a transaction into the approval workflow.
type OpenApprovalRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
	SubmittedBy   string `json:"submitted_by" validate:"required"`
}

// TransitionRequest advances or rejects an approval.
type TransitionRequest struct {
	Status string `json:"status" validate:"required"`
	Actor  string `json:"actor" validate:"required"`
	Notes  string `json:"notes,omitempty"`
}

// HistoryEntryDTO is one approval audit record.
type HistoryEntryDTO struct {
	PreviousStatus string `json:"previous_status,omitempty"`
	NewStatus      string `json:"new_status"`
	Actor          string `json:"actor"`
	Notes          string `json:"notes,omitempty"`
	At             string `json:"at"`
}

// ForecastDTO is the monthly cash-flow projection for an agent.
type ForecastDTO struct {
	AgentID       string             `json:"agent_id"`
	TotalExpected string             `json:"total_expected"`
	Periods       []ForecastMonthDTO `json:"periods"`
}

// ForecastMonthDTO is one monthly forecast bucket.
type ForecastMonthDTO struct {
	Month           string `json:"month"` // YYYY-MM
	ExpectedAmount  string `json:"expected_amount"`
	ConfirmedAmount string `json:"confirmed_amount"`
	PendingAmount   string `json:"pending_amount"`
}

// CutoffDayDTO carries the forecast cutoff configuration.
type CutoffDayDTO struct {
	CutoffDay int `json:"cutoff_day"`
}

// SweepResponse summarizes an overdue sweep.
type SweepResponse struct {
	MarkedOverdue int              `json:"marked_overdue"`
	Installments  []InstallmentDTO `json:"installments"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest selects a demo scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAgentDTO(a engine.Agent) AgentDTO {
	dto := AgentDTO{
		ID:        string(a.ID),
		Name:      a.Name,
		Rank:      string(a.Rank),
		Active:    a.Active,
		CreatedAt: formatTime(a.CreatedAt),
	}
	if a.UplineID != nil {
		s := string(*a.UplineID)
		dto.UplineID = &s
	}
	return dto
}

func toScheduleDTO(t engine.PaymentScheduleTemplate) ScheduleDTO {
	dto := ScheduleDTO{
		ID:          string(t.ID),
		Name:        t.Name,
		Description: t.Description,
		IsDefault:   t.IsDefault,
		CreatedAt:   formatTime(t.CreatedAt),
	}
	for _, row := range t.Sorted() {
		dto.Installments = append(dto.Installments, ScheduleRowDTO{
			Number:      row.Number,
			Percent:     row.Percent.String(),
			DaysAfter:   row.DaysAfter,
			Description: row.Description,
		})
	}
	return dto
}

func toTransactionDTO(t engine.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:                    string(t.ID),
		AgentID:               string(t.AgentID),
		CommissionAmount:      t.CommissionAmount.StringFixed(2),
		Date:                  t.Date.Format("2006-01-02"),
		SplitPercent:          t.SplitPercent.String(),
		InstallmentsGenerated: t.InstallmentsGenerated,
		CreatedAt:             formatTime(t.CreatedAt),
	}
	if t.ScheduleID != nil {
		s := string(*t.ScheduleID)
		dto.ScheduleID = &s
	}
	return dto
}

func toInstallmentDTO(inst engine.CommissionInstallment) InstallmentDTO {
	dto := InstallmentDTO{
		ID:            string(inst.ID),
		TransactionID: string(inst.TransactionID),
		Number:        inst.Number,
		AgentID:       string(inst.AgentID),
		Amount:        inst.Amount.StringFixed(2),
		Percent:       inst.Percent.String(),
		ScheduledDate: inst.ScheduledDate.Format("2006-01-02"),
		Status:        string(inst.Status),
		Notes:         inst.Notes,
	}
	if inst.PaidAt != nil {
		s := formatTime(*inst.PaidAt)
		dto.PaidAt = &s
	}
	return dto
}

func toInstallmentDTOs(insts []engine.CommissionInstallment) []InstallmentDTO {
	dtos := make([]InstallmentDTO, len(insts))
	for i, inst := range insts {
		dtos[i] = toInstallmentDTO(inst)
	}
	return dtos
}

func toApprovalDTO(a engine.CommissionApproval) ApprovalDTO {
	return ApprovalDTO{
		ID:               string(a.ID),
		TransactionID:    string(a.TransactionID),
		Status:           string(a.Status),
		SubmittedBy:      a.SubmittedBy,
		SubmittedAt:      formatTime(a.SubmittedAt),
		CommissionAmount: a.CommissionAmount.StringFixed(2),
	}
}

func toForecastDTO(f engine.Forecast) ForecastDTO {
	dto := ForecastDTO{
		AgentID:       string(f.AgentID),
		TotalExpected: f.TotalExpected.StringFixed(2),
	}
	for _, p := range f.Periods {
		dto.Periods = append(dto.Periods, ForecastMonthDTO{
			Month:           p.Month.String(),
			ExpectedAmount:  p.ExpectedAmount.StringFixed(2),
			ConfirmedAmount: p.ConfirmedAmount.StringFixed(2),
			PendingAmount:   p.PendingAmount.StringFixed(2),
		})
	}
	return dto
}
