package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a strata management firm, the tenant boundary.
type Organization struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	StripeCustomerID *string   `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Organization member roles. Owners and managers may mutate; viewers read.
const (
	OrgRoleOwner   = "owner"
	OrgRoleManager = "manager"
	OrgRoleViewer  = "viewer"
)

// OrganizationUser links a user to an organization with a role.
type OrganizationUser struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	UserID         uuid.UUID `json:"user_id"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OrganizationMember is a membership joined with the user's profile.
type OrganizationMember struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
}

// CanWrite reports whether the role may mutate organisation data.
func CanWrite(role string) bool {
	return role == OrgRoleOwner || role == OrgRoleManager
}
