package models

import (
	"time"

	"github.com/google/uuid"
)

// Owner is a lot owner. Portal fields track self-service access.
type Owner struct {
	ID                 uuid.UUID   `json:"id"`
	OrganizationID     uuid.UUID   `json:"organization_id"`
	Name               string      `json:"name"`
	Email              string      `json:"email"`
	Phone              string      `json:"phone"`
	PortalInvitedAt    *time.Time  `json:"portal_invited_at,omitempty"`
	PortalAcceptedAt   *time.Time  `json:"portal_accepted_at,omitempty"`
	PortalActivatedAt  *time.Time  `json:"portal_activated_at,omitempty"`
	PortalUserID       *uuid.UUID  `json:"portal_user_id,omitempty"`
	PortalInviteExpiry *time.Time  `json:"-"`
	PortalState        string      `json:"portal_state"`
	LotIDs             []uuid.UUID `json:"lot_ids,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}
