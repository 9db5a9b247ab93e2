package owners

import (
	"time"

	"github.com/google/uuid"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/models"
)

// PortalState is an owner's self-service access state.
type PortalState string

const (
	StateNoAccess  PortalState = "no_access"
	StateInvited   PortalState = "invited"
	StateAccepted  PortalState = "accepted"
	StateActivated PortalState = "activated"
)

// Action names a portal transition.
type Action string

const (
	ActionInvite   Action = "invite"
	ActionAccept   Action = "accept"
	ActionActivate Action = "activate"
	ActionReset    Action = "reset"
)

// Event is a requested transition. UserID is only read by activate.
type Event struct {
	Action Action
	UserID uuid.UUID
}

func Invite() Event                   { return Event{Action: ActionInvite} }
func Accept() Event                   { return Event{Action: ActionAccept} }
func Activate(userID uuid.UUID) Event { return Event{Action: ActionActivate, UserID: userID} }
func Reset() Event                    { return Event{Action: ActionReset} }

// Portal holds the stored portal fields of an owner.
type Portal struct {
	InvitedAt   *time.Time
	AcceptedAt  *time.Time
	ActivatedAt *time.Time
	UserID      *uuid.UUID
}

// PortalOf extracts the portal fields from an owner.
func PortalOf(o *models.Owner) Portal {
	return Portal{
		InvitedAt:   o.PortalInvitedAt,
		AcceptedAt:  o.PortalAcceptedAt,
		ActivatedAt: o.PortalActivatedAt,
		UserID:      o.PortalUserID,
	}
}

// Apply writes p onto o and refreshes the derived state.
func (p Portal) Apply(o *models.Owner) {
	o.PortalInvitedAt = p.InvitedAt
	o.PortalAcceptedAt = p.AcceptedAt
	o.PortalActivatedAt = p.ActivatedAt
	o.PortalUserID = p.UserID
	o.PortalState = string(p.State())
}

// State derives the state from the latest timestamp set.
func (p Portal) State() PortalState {
	switch {
	case p.ActivatedAt != nil:
		return StateActivated
	case p.AcceptedAt != nil:
		return StateAccepted
	case p.InvitedAt != nil:
		return StateInvited
	default:
		return StateNoAccess
	}
}

// Validate checks that timestamps are set in order and never skip a step.
func (p Portal) Validate() error {
	if p.AcceptedAt != nil && p.InvitedAt == nil {
		return apperr.Validation("portal accepted without an invitation")
	}
	if p.ActivatedAt != nil && p.AcceptedAt == nil {
		return apperr.Validation("portal activated without acceptance")
	}
	if p.AcceptedAt != nil && p.AcceptedAt.Before(*p.InvitedAt) {
		return apperr.Validation("portal accepted before it was invited")
	}
	if p.ActivatedAt != nil && p.ActivatedAt.Before(*p.AcceptedAt) {
		return apperr.Validation("portal activated before it was accepted")
	}
	if (p.ActivatedAt != nil) != (p.UserID != nil) {
		return apperr.Validation("portal user must be set exactly when activated")
	}
	return nil
}

// Transition applies ev at the given time and returns the new portal. p is not modified.
func Transition(p Portal, ev Event, at time.Time) (Portal, error) {
	// Reset also recovers rows whose stored fields are inconsistent.
	if ev.Action == ActionReset {
		return Portal{}, nil
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	state := p.State()
	at = at.UTC()

	switch ev.Action {
	case ActionInvite:
		// A pending invitation may be re-sent; that replaces its token and timestamp.
		reinvite := state == StateInvited
		if state != StateNoAccess && !reinvite {
			return p, apperr.Validation("cannot invite an owner whose portal is %s; only owners without access or with a pending invitation can be invited", state)
		}
		if p.InvitedAt != nil && at.Before(*p.InvitedAt) {
			return p, apperr.Validation("invitation time precedes the previous invitation")
		}
		return Portal{InvitedAt: &at}, nil

	case ActionAccept:
		if state != StateInvited {
			return p, apperr.Validation("cannot accept a portal that is %s", state)
		}
		if at.Before(*p.InvitedAt) {
			return p, apperr.Validation("acceptance time precedes the invitation")
		}
		next := p
		next.AcceptedAt = &at
		return next, nil

	case ActionActivate:
		if state != StateAccepted {
			return p, apperr.Validation("cannot activate a portal that is %s", state)
		}
		if ev.UserID == uuid.Nil {
			return p, apperr.Validation("activation requires a portal user")
		}
		if at.Before(*p.AcceptedAt) {
			return p, apperr.Validation("activation time precedes acceptance")
		}
		userID := ev.UserID
		next := p
		next.ActivatedAt = &at
		next.UserID = &userID
		return next, nil
	}
	return p, apperr.Validation("unknown portal action %q", ev.Action)
}
