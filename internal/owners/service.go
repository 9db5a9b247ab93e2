package owners

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/utils"
)

// PortalStore runs portal changes inside a transaction.
type PortalStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx PortalTx) error) error
}

// PortalTx is the transaction-scoped view used by PortalService. Lock methods hold row locks until the
// transaction ends.
type PortalTx interface {
	LockOwner(ctx context.Context, orgID, ownerID uuid.UUID) (*models.Owner, error)
	LockByTokenHash(ctx context.Context, hash string) (*models.Owner, error)
	LockByEmail(ctx context.Context, email string) ([]*models.Owner, error)
	// SavePortal writes the portal fields of o. A nil token clears the stored invitation.
	SavePortal(ctx context.Context, o *models.Owner, token *InviteToken) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreatePortalUser(ctx context.Context, email, passwordHash, fullName string) (*models.User, error)
}

// InviteToken is the stored form of an invitation. Only the hash is persisted.
type InviteToken struct {
	Hash      string
	ExpiresAt time.Time
}

// PortalService drives owners through the portal state machine.
type PortalService struct {
	store     PortalStore
	inviteTTL time.Duration
	now       func() time.Time
}

// NewPortalService creates a portal service. Invitations expire after inviteTTL.
func NewPortalService(store PortalStore, inviteTTL time.Duration) *PortalService {
	return &PortalService{store: store, inviteTTL: inviteTTL, now: time.Now}
}

// Invite moves an owner to invited and returns the plain invitation token. Re-inviting replaces the token.
func (s *PortalService) Invite(ctx context.Context, orgID, ownerID uuid.UUID) (*models.Owner, string, error) {
	token, err := utils.NewToken()
	if err != nil {
		return nil, "", err
	}
	var owner *models.Owner
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx PortalTx) error {
		o, err := tx.LockOwner(ctx, orgID, ownerID)
		if err != nil {
			return err
		}
		now := s.now()
		next, err := Transition(PortalOf(o), Invite(), now)
		if err != nil {
			return err
		}
		next.Apply(o)
		if err := tx.SavePortal(ctx, o, &InviteToken{Hash: utils.HashToken(token), ExpiresAt: now.Add(s.inviteTTL).UTC()}); err != nil {
			return err
		}
		owner = o
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return owner, token, nil
}

// Reset returns an owner to no_access and discards any outstanding invitation.
func (s *PortalService) Reset(ctx context.Context, orgID, ownerID uuid.UUID) (*models.Owner, error) {
	var owner *models.Owner
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx PortalTx) error {
		o, err := tx.LockOwner(ctx, orgID, ownerID)
		if err != nil {
			return err
		}
		if err := s.reset(ctx, tx, o); err != nil {
			return err
		}
		owner = o
		return nil
	})
	return owner, err
}

// ResetByEmail resets every owner with the given email across organizations. An empty result means
// no owner matched.
func (s *PortalService) ResetByEmail(ctx context.Context, email string) ([]*models.Owner, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	var reset []*models.Owner
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx PortalTx) error {
		list, err := tx.LockByEmail(ctx, email)
		if err != nil {
			return err
		}
		for _, o := range list {
			if err := s.reset(ctx, tx, o); err != nil {
				return err
			}
		}
		reset = list
		return nil
	})
	return reset, err
}

func (s *PortalService) reset(ctx context.Context, tx PortalTx, o *models.Owner) error {
	next, err := Transition(PortalOf(o), Reset(), s.now())
	if err != nil {
		return err
	}
	next.Apply(o)
	return tx.SavePortal(ctx, o, nil)
}

// Invitation returns the owner an unexpired, unused invitation token belongs to.
func (s *PortalService) Invitation(ctx context.Context, token string) (*models.Owner, error) {
	var owner *models.Owner
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx PortalTx) error {
		o, err := s.lockInvitation(ctx, tx, token)
		owner = o
		return err
	})
	return owner, err
}

// Accept records that the owner accepted the invitation. The token stays valid for activation.
func (s *PortalService) Accept(ctx context.Context, token string) (*models.Owner, error) {
	var owner *models.Owner
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx PortalTx) error {
		o, err := s.lockInvitation(ctx, tx, token)
		if err != nil {
			return err
		}
		if PortalOf(o).State() == StateAccepted {
			owner = o
			return nil
		}
		next, err := Transition(PortalOf(o), Accept(), s.now())
		if err != nil {
			return err
		}
		next.Apply(o)
		if err := tx.SavePortal(ctx, o, &InviteToken{Hash: utils.HashToken(token), ExpiresAt: *o.PortalInviteExpiry}); err != nil {
			return err
		}
		owner = o
		return nil
	})
	return owner, err
}

// Activate creates (or reuses) the owner's portal login, links it and consumes the invitation.
// An existing portal login must be proven with its password.
func (s *PortalService) Activate(ctx context.Context, token, password string) (*models.Owner, *models.User, error) {
	if len(password) < utils.MinPasswordLength {
		return nil, nil, apperr.Validation("password must be at least %d characters", utils.MinPasswordLength)
	}
	var (
		owner *models.Owner
		user  *models.User
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx PortalTx) error {
		o, err := s.lockInvitation(ctx, tx, token)
		if err != nil {
			return err
		}
		u, err := s.portalUser(ctx, tx, o, password)
		if err != nil {
			return err
		}
		next, err := Transition(PortalOf(o), Activate(u.ID), s.now())
		if err != nil {
			return err
		}
		next.Apply(o)
		if err := tx.SavePortal(ctx, o, nil); err != nil {
			return err
		}
		owner, user = o, u
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return owner, user, nil
}

func (s *PortalService) portalUser(ctx context.Context, tx PortalTx, o *models.Owner, password string) (*models.User, error) {
	existing, err := tx.FindUserByEmail(ctx, o.Email)
	switch {
	case err == nil:
		if existing.Role != models.RoleOwner {
			return nil, apperr.Conflict("email is registered to a staff account")
		}
		if !utils.CheckPassword(password, existing.PasswordHash) {
			return nil, apperr.Unauthorized("email already has a portal login; use its password")
		}
		return existing, nil
	case !apperr.IsNotFound(err):
		return nil, err
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	return tx.CreatePortalUser(ctx, o.Email, hash, o.Name)
}

func (s *PortalService) lockInvitation(ctx context.Context, tx PortalTx, token string) (*models.Owner, error) {
	if token == "" {
		return nil, apperr.NotFound("invitation")
	}
	o, err := tx.LockByTokenHash(ctx, utils.HashToken(token))
	if err != nil {
		return nil, err
	}
	state := PortalOf(o).State()
	if state != StateInvited && state != StateAccepted {
		return nil, apperr.NotFound("invitation")
	}
	if o.PortalInviteExpiry == nil || !s.now().Before(*o.PortalInviteExpiry) {
		return nil, apperr.Validation("invitation has expired; ask your manager for a new one")
	}
	return o, nil
}
