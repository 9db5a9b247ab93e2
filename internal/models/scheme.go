package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Record status shared by schemes and lots. Inactive rows are kept for history.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Scheme is a strata scheme (building) managed by an organisation.
type Scheme struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	Number         string    `json:"number"`
	Address        string    `json:"address"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Lot is a unit within a scheme. Entitlement weights its share of levies.
type Lot struct {
	ID          uuid.UUID       `json:"id"`
	SchemeID    uuid.UUID       `json:"scheme_id"`
	LotNumber   int             `json:"lot_number"`
	UnitNumber  string          `json:"unit_number"`
	Entitlement decimal.Decimal `json:"entitlement"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
