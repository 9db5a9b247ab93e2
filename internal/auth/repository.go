package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/database"
)

const userColumns = `id, email, password_hash, full_name, role, created_at, updated_at`

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(ctx, r.pool, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns a user by email, case-insensitively.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return FindUserByEmail(ctx, r.pool, email)
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, email, passwordHash, fullName string, role models.Role) (*models.User, error) {
	return CreateUser(ctx, r.pool, email, passwordHash, fullName, role)
}

// FindUserByEmail looks up a user using db, which may be a transaction.
func FindUserByEmail(ctx context.Context, db database.DBTX, email string) (*models.User, error) {
	return scanUser(ctx, db, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// CreateUser inserts a user using db, which may be a transaction.
func CreateUser(ctx context.Context, db database.DBTX, email, passwordHash, fullName string, role models.Role) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, full_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	u, err := scanUser(ctx, db, q, strings.ToLower(strings.TrimSpace(email)), passwordHash, fullName, string(role))
	if database.IsUniqueViolation(err) {
		return nil, apperr.Conflict("email already registered")
	}
	return u, err
}

func scanUser(ctx context.Context, db database.DBTX, q string, args ...any) (*models.User, error) {
	var u models.User
	err := db.QueryRow(ctx, q, args...).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	return &u, nil
}
