package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the platform-wide role carried in the session token.
type Role string

const (
	// RoleStaff signs in to the console and works inside organisations.
	RoleStaff Role = "staff"
	// RoleOwner signs in to the owner portal only.
	RoleOwner Role = "owner"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStaff || r == RoleOwner
}

// User is a login. Owner logins are created when a portal invitation is activated.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile is the part of a user returned by the API.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role, CreatedAt: u.CreatedAt}
}
