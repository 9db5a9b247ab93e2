package models

import (
	"time"

	"github.com/google/uuid"
)

// Levy schedule status.
const (
	LevyStatusDraft     = "draft"
	LevyStatusGenerated = "generated"
)

// LevySchedule is a budget to apportion across a scheme's active lots for one period.
type LevySchedule struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	SchemeID       uuid.UUID  `json:"scheme_id"`
	Name           string     `json:"name"`
	BudgetCents    int64      `json:"budget_cents"`
	PeriodStart    time.Time  `json:"period_start"`
	PeriodEnd      time.Time  `json:"period_end"`
	Status         string     `json:"status"`
	GeneratedAt    *time.Time `json:"generated_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// LevyItem is one lot's share of a schedule.
type LevyItem struct {
	ID          uuid.UUID `json:"id"`
	ScheduleID  uuid.UUID `json:"schedule_id"`
	LotID       uuid.UUID `json:"lot_id"`
	LotNumber   int       `json:"lot_number,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}
