package models

import (
	"time"

	"github.com/google/uuid"
)

// Email templates.
const (
	EmailTemplatePortalInvite = "portal_invite"
	EmailTemplateLevyNotice   = "levy_notice"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusPending = "pending"
	EmailLogStatusSent    = "sent"
	EmailLogStatusFailed  = "failed"
	EmailLogStatusSkipped = "skipped"
)

// EmailLog records a transactional email attempt.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	OwnerID        *uuid.UUID `json:"owner_id,omitempty"`
	Template       string     `json:"template"`
	Recipient      string     `json:"recipient"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
