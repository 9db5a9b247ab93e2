package owners

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/auth"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/database"
)

const ownerColumns = `o.id, o.organization_id, o.name, o.email, o.phone,
	o.portal_invited_at, o.portal_accepted_at, o.portal_activated_at, o.portal_user_id, o.portal_invite_expires_at,
	o.created_at, o.updated_at`

// Repository handles owner persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an owner repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithinTx implements PortalStore.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx PortalTx) error) error {
	return database.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Create inserts an owner with no portal access.
func (r *Repository) Create(ctx context.Context, o *models.Owner) error {
	const q = `INSERT INTO owners (organization_id, name, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	o.Email = normalizeEmail(o.Email)
	if err := r.pool.QueryRow(ctx, q, o.OrganizationID, o.Name, o.Email, o.Phone).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return err
	}
	o.PortalState = string(StateNoAccess)
	return nil
}

// GetByID returns an owner in orgID together with its linked lot IDs.
func (r *Repository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Owner, error) {
	o, err := getOwner(ctx, r.pool, `WHERE o.id = $1 AND o.organization_id = $2`, id, orgID)
	if err != nil {
		return nil, err
	}
	if o.LotIDs, err = r.lotIDs(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

// GetByPortalUser returns every owner record linked to a portal user.
func (r *Repository) GetByPortalUser(ctx context.Context, userID uuid.UUID) ([]*models.Owner, error) {
	list, err := queryOwners(ctx, r.pool, `WHERE o.portal_user_id = $1 AND o.portal_activated_at IS NOT NULL ORDER BY o.created_at`, userID)
	if err != nil {
		return nil, err
	}
	for _, o := range list {
		if o.LotIDs, err = r.lotIDs(ctx, o.ID); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// List returns an organization's owners ordered by name, with linked lots.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID) ([]*models.Owner, error) {
	list, err := queryOwners(ctx, r.pool, `WHERE o.organization_id = $1 ORDER BY o.name, o.id`, orgID)
	if err != nil {
		return nil, err
	}
	const q = `SELECT ol.owner_id, ol.lot_id
		FROM owner_lots ol
		JOIN owners o ON o.id = ol.owner_id
		JOIN lots l ON l.id = ol.lot_id
		WHERE o.organization_id = $1
		ORDER BY l.lot_number`
	rows, err := r.pool.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byOwner := make(map[uuid.UUID][]uuid.UUID)
	for rows.Next() {
		var ownerID, lotID uuid.UUID
		if err := rows.Scan(&ownerID, &lotID); err != nil {
			return nil, err
		}
		byOwner[ownerID] = append(byOwner[ownerID], lotID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range list {
		o.LotIDs = byOwner[o.ID]
	}
	return list, nil
}

// Update changes an owner's contact details.
func (r *Repository) Update(ctx context.Context, o *models.Owner) error {
	const q = `UPDATE owners SET name = $3, email = $4, phone = $5, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2`
	o.Email = normalizeEmail(o.Email)
	tag, err := r.pool.Exec(ctx, q, o.ID, o.OrganizationID, o.Name, o.Email, o.Phone)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("owner")
	}
	return nil
}

// LinkLot records that an owner holds a lot. Both must belong to orgID. Linking twice is a no-op.
func (r *Repository) LinkLot(ctx context.Context, orgID, ownerID, lotID uuid.UUID) error {
	const q = `INSERT INTO owner_lots (owner_id, lot_id)
		SELECT o.id, l.id
		FROM owners o, lots l JOIN schemes s ON s.id = l.scheme_id
		WHERE o.id = $1 AND o.organization_id = $3 AND l.id = $2 AND s.organization_id = $3
		ON CONFLICT (owner_id, lot_id) DO UPDATE SET created_at = owner_lots.created_at
		RETURNING owner_id`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, q, ownerID, lotID, orgID).Scan(&id)
	if database.IsNoRows(err) {
		return apperr.NotFound("owner or lot")
	}
	return err
}

// UnlinkLot removes an owner's link to a lot.
func (r *Repository) UnlinkLot(ctx context.Context, orgID, ownerID, lotID uuid.UUID) error {
	const q = `DELETE FROM owner_lots ol
		USING owners o
		WHERE ol.owner_id = o.id AND o.id = $1 AND o.organization_id = $3 AND ol.lot_id = $2`
	tag, err := r.pool.Exec(ctx, q, ownerID, lotID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("owner lot link")
	}
	return nil
}

func (r *Repository) lotIDs(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT ol.lot_id FROM owner_lots ol JOIN lots l ON l.id = ol.lot_id
		WHERE ol.owner_id = $1 ORDER BY l.lot_number`
	rows, err := r.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// txRepo implements PortalTx on a single transaction.
type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) LockOwner(ctx context.Context, orgID, ownerID uuid.UUID) (*models.Owner, error) {
	return getOwner(ctx, t.tx, `WHERE o.id = $1 AND o.organization_id = $2 FOR UPDATE`, ownerID, orgID)
}

func (t *txRepo) LockByTokenHash(ctx context.Context, hash string) (*models.Owner, error) {
	o, err := getOwner(ctx, t.tx, `WHERE o.portal_invite_token_hash = $1 FOR UPDATE`, hash)
	if apperr.IsNotFound(err) {
		return nil, apperr.NotFound("invitation")
	}
	return o, err
}

func (t *txRepo) LockByEmail(ctx context.Context, email string) ([]*models.Owner, error) {
	return queryOwners(ctx, t.tx, `WHERE lower(o.email) = lower($1) ORDER BY o.created_at FOR UPDATE`, email)
}

func (t *txRepo) SavePortal(ctx context.Context, o *models.Owner, token *InviteToken) error {
	const q = `UPDATE owners SET
			portal_invited_at = $2, portal_accepted_at = $3, portal_activated_at = $4, portal_user_id = $5,
			portal_invite_token_hash = $6, portal_invite_expires_at = $7, updated_at = NOW()
		WHERE id = $1`
	var (
		hash    *string
		expires *time.Time
	)
	if token != nil {
		hash, expires = &token.Hash, &token.ExpiresAt
	}
	_, err := t.tx.Exec(ctx, q, o.ID, o.PortalInvitedAt, o.PortalAcceptedAt, o.PortalActivatedAt, o.PortalUserID, hash, expires)
	if err == nil {
		o.PortalInviteExpiry = expires
	}
	return err
}

func (t *txRepo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return auth.FindUserByEmail(ctx, t.tx, email)
}

func (t *txRepo) CreatePortalUser(ctx context.Context, email, passwordHash, fullName string) (*models.User, error) {
	return auth.CreateUser(ctx, t.tx, email, passwordHash, fullName, models.RoleOwner)
}

func getOwner(ctx context.Context, db database.DBTX, where string, args ...any) (*models.Owner, error) {
	o, err := scanOwner(db.QueryRow(ctx, `SELECT `+ownerColumns+` FROM owners o `+where, args...))
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("owner")
	}
	return o, err
}

func queryOwners(ctx context.Context, db database.DBTX, where string, args ...any) ([]*models.Owner, error) {
	rows, err := db.Query(ctx, `SELECT `+ownerColumns+` FROM owners o `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Owner
	for rows.Next() {
		o, err := scanOwner(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

func scanOwner(row pgx.Row) (*models.Owner, error) {
	var o models.Owner
	err := row.Scan(&o.ID, &o.OrganizationID, &o.Name, &o.Email, &o.Phone,
		&o.PortalInvitedAt, &o.PortalAcceptedAt, &o.PortalActivatedAt, &o.PortalUserID, &o.PortalInviteExpiry,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.PortalState = string(PortalOf(&o).State())
	return &o, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
