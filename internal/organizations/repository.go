package organizations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/database"
)

// Repository handles organization and organization_user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateWithOwner creates an organization and makes userID its owner in one transaction.
func (r *Repository) CreateWithOwner(ctx context.Context, org *models.Organization, userID uuid.UUID) error {
	return database.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		const q = `INSERT INTO organizations (name, slug)
			VALUES ($1, $2)
			RETURNING id, created_at, updated_at`
		if err := tx.QueryRow(ctx, q, org.Name, org.Slug).Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt); err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.Conflict("an organization with this slug already exists")
			}
			return err
		}
		return addUser(ctx, tx, org.ID, userID, models.OrgRoleOwner)
	})
}

// GetByID returns an organization by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	const q = `SELECT id, name, slug, stripe_customer_id, created_at, updated_at FROM organizations WHERE id = $1`
	var org models.Organization
	err := r.pool.QueryRow(ctx, q, id).Scan(&org.ID, &org.Name, &org.Slug, &org.StripeCustomerID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("organization")
		}
		return nil, err
	}
	return &org, nil
}

// AddUser adds a user to an organization with a role, updating the role if already a member.
func (r *Repository) AddUser(ctx context.Context, orgID, userID uuid.UUID, role string) error {
	return addUser(ctx, r.pool, orgID, userID, role)
}

func addUser(ctx context.Context, db database.DBTX, orgID, userID uuid.UUID, role string) error {
	const q = `INSERT INTO organization_users (organization_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()`
	_, err := db.Exec(ctx, q, orgID, userID, role)
	return err
}

// RemoveUser removes a membership. The last owner cannot be removed.
func (r *Repository) RemoveUser(ctx context.Context, orgID, userID uuid.UUID) error {
	return database.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var role string
		err := tx.QueryRow(ctx, `SELECT role FROM organization_users WHERE organization_id = $1 AND user_id = $2 FOR UPDATE`, orgID, userID).Scan(&role)
		if err != nil {
			if database.IsNoRows(err) {
				return apperr.NotFound("member")
			}
			return err
		}
		if role == models.OrgRoleOwner {
			var owners int
			if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM organization_users WHERE organization_id = $1 AND role = 'owner'`, orgID).Scan(&owners); err != nil {
				return err
			}
			if owners <= 1 {
				return apperr.Conflict("cannot remove the last owner of an organization")
			}
		}
		_, err = tx.Exec(ctx, `DELETE FROM organization_users WHERE organization_id = $1 AND user_id = $2`, orgID, userID)
		return err
	})
}

// GetUserRole returns the user's role in the organization. Non-members get apperr.NotFound.
func (r *Repository) GetUserRole(ctx context.Context, orgID, userID uuid.UUID) (string, error) {
	const q = `SELECT role FROM organization_users WHERE organization_id = $1 AND user_id = $2`
	var role string
	err := r.pool.QueryRow(ctx, q, orgID, userID).Scan(&role)
	if err != nil {
		if database.IsNoRows(err) {
			return "", apperr.NotFound("membership")
		}
		return "", err
	}
	return role, nil
}

// ListOrganizationsForUser returns organizations the user is a member of.
func (r *Repository) ListOrganizationsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error) {
	const q = `SELECT o.id, o.name, o.slug, o.created_at, o.updated_at
		FROM organizations o
		INNER JOIN organization_users ou ON ou.organization_id = o.id
		WHERE ou.user_id = $1
		ORDER BY o.name`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Organization{}
	for rows.Next() {
		var o models.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &o)
	}
	return list, rows.Err()
}

// Member represents an organization member with user details.
type Member struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
	AddedAt  time.Time `json:"added_at"`
}

// ListMembers returns members of an organization.
func (r *Repository) ListMembers(ctx context.Context, orgID uuid.UUID) ([]Member, error) {
	const q = `SELECT ou.user_id, u.email, u.full_name, ou.role, ou.created_at
		FROM organization_users ou
		INNER JOIN users u ON u.id = ou.user_id
		WHERE ou.organization_id = $1
		ORDER BY ou.created_at ASC`
	rows, err := r.pool.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.FullName, &m.Role, &m.AddedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// StripeCustomerID returns the organization's Stripe customer, or "" when it has none.
func (r *Repository) StripeCustomerID(ctx context.Context, orgID uuid.UUID) (string, error) {
	var id *string
	err := r.pool.QueryRow(ctx, `SELECT stripe_customer_id FROM organizations WHERE id = $1`, orgID).Scan(&id)
	if err != nil {
		if database.IsNoRows(err) {
			return "", apperr.NotFound("organization")
		}
		return "", err
	}
	if id == nil {
		return "", nil
	}
	return *id, nil
}

// SetStripeCustomerID links the organization to a Stripe customer.
func (r *Repository) SetStripeCustomerID(ctx context.Context, orgID uuid.UUID, customerID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE organizations SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`, orgID, customerID)
	return err
}

// OrganizationByStripeCustomer resolves a Stripe customer back to its organization.
func (r *Repository) OrganizationByStripeCustomer(ctx context.Context, customerID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT id FROM organizations WHERE stripe_customer_id = $1`, customerID).Scan(&id)
	if err != nil {
		if database.IsNoRows(err) {
			return uuid.Nil, apperr.NotFound("organization for stripe customer")
		}
		return uuid.Nil, err
	}
	return id, nil
}

// BillingAccount pairs an organization with its Stripe customer.
type BillingAccount struct {
	OrganizationID uuid.UUID
	CustomerID     string
}

// ListBillingAccounts returns every organization linked to a Stripe customer.
func (r *Repository) ListBillingAccounts(ctx context.Context) ([]BillingAccount, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, stripe_customer_id FROM organizations WHERE stripe_customer_id IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []BillingAccount
	for rows.Next() {
		var a BillingAccount
		if err := rows.Scan(&a.OrganizationID, &a.CustomerID); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
