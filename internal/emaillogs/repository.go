package emaillogs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratum-app/backend/internal/models"
)

// Filter narrows an organisation's delivery log. Zero values match everything.
type Filter struct {
	Status   string
	Template string
	OwnerID  *uuid.UUID
	Limit    int
}

// Repository persists email delivery attempts.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create records one delivery outcome. The worker is the only writer.
func (r *Repository) Create(ctx context.Context, el *models.EmailLog) error {
	const q = `INSERT INTO email_logs (organization_id, owner_id, template, recipient, subject, status, error_message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q,
		el.OrganizationID, el.OwnerID, el.Template, el.Recipient, el.Subject, el.Status, el.ErrorMessage, el.SentAt,
	).Scan(&el.ID, &el.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// List returns an organisation's delivery log, newest first.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID, f Filter) ([]*models.EmailLog, error) {
	var (
		where = []string{"organization_id = $1"}
		args  = []any{orgID}
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Template != "" {
		add("template = $%d", f.Template)
	}
	if f.OwnerID != nil {
		add("owner_id = $%d", *f.OwnerID)
	}
	args = append(args, f.Limit)

	q := `SELECT id, organization_id, owner_id, template, recipient, COALESCE(subject, ''), status, sent_at,
			COALESCE(error_message, ''), created_at
		FROM email_logs
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC
		LIMIT $` + fmt.Sprint(len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()

	list := []*models.EmailLog{}
	for rows.Next() {
		el := &models.EmailLog{}
		if err := rows.Scan(&el.ID, &el.OrganizationID, &el.OwnerID, &el.Template, &el.Recipient, &el.Subject,
			&el.Status, &el.SentAt, &el.ErrorMessage, &el.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, el)
	}
	return list, rows.Err()
}
