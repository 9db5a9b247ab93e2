package levy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/pkg/database"
)

const scheduleColumns = `ls.id, s.organization_id, ls.scheme_id, ls.name, ls.budget_cents, ls.period_start, ls.period_end,
	ls.status, ls.generated_at, ls.created_at, ls.updated_at`

// Repository handles levy schedule and levy item persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a levy repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithinTx implements Store.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return database.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// CreateSchedule inserts a draft schedule for a scheme owned by orgID.
func (r *Repository) CreateSchedule(ctx context.Context, orgID uuid.UUID, s *models.LevySchedule) error {
	const q = `INSERT INTO levy_schedules (scheme_id, name, budget_cents, period_start, period_end)
		SELECT sc.id, $3, $4, $5, $6
		FROM schemes sc WHERE sc.id = $1 AND sc.organization_id = $2
		RETURNING id, status, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, s.SchemeID, orgID, s.Name, s.BudgetCents, s.PeriodStart, s.PeriodEnd).
		Scan(&s.ID, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if database.IsNoRows(err) {
		return apperr.NotFound("scheme")
	}
	if err == nil {
		s.OrganizationID = orgID
	}
	return err
}

// GetSchedule returns a schedule within the organisation.
func (r *Repository) GetSchedule(ctx context.Context, orgID, id uuid.UUID) (*models.LevySchedule, error) {
	q := `SELECT ` + scheduleColumns + `
		FROM levy_schedules ls
		INNER JOIN schemes s ON s.id = ls.scheme_id
		WHERE ls.id = $1 AND s.organization_id = $2`
	s, err := scanSchedule(r.pool.QueryRow(ctx, q, id, orgID))
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("levy schedule")
	}
	return s, err
}

// ListSchedules returns a scheme's schedules, newest period first.
func (r *Repository) ListSchedules(ctx context.Context, orgID, schemeID uuid.UUID) ([]models.LevySchedule, error) {
	q := `SELECT ` + scheduleColumns + `
		FROM levy_schedules ls
		INNER JOIN schemes s ON s.id = ls.scheme_id
		WHERE ls.scheme_id = $1 AND s.organization_id = $2
		ORDER BY ls.period_start DESC, ls.created_at DESC`
	rows, err := r.pool.Query(ctx, q, schemeID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.LevySchedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// ListItems returns a schedule's items in lot order.
func (r *Repository) ListItems(ctx context.Context, scheduleID uuid.UUID) ([]models.LevyItem, error) {
	const q = `SELECT li.id, li.schedule_id, li.lot_id, l.lot_number, li.amount_cents, li.created_at
		FROM levy_items li
		INNER JOIN lots l ON l.id = li.lot_id
		WHERE li.schedule_id = $1
		ORDER BY l.lot_number, l.id`
	rows, err := r.pool.Query(ctx, q, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.LevyItem{}
	for rows.Next() {
		var it models.LevyItem
		if err := rows.Scan(&it.ID, &it.ScheduleID, &it.LotID, &it.LotNumber, &it.AmountCents, &it.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, it)
	}
	return list, rows.Err()
}

// Recipient is an owner to notify about their lot's levy.
type Recipient struct {
	OwnerID     uuid.UUID
	Name        string
	Email       string
	LotNumber   int
	AmountCents int64
}

// Recipients returns one row per owner per lot with an item in the schedule.
func (r *Repository) Recipients(ctx context.Context, scheduleID uuid.UUID) ([]Recipient, error) {
	const q = `SELECT o.id, o.name, o.email, l.lot_number, li.amount_cents
		FROM levy_items li
		INNER JOIN lots l ON l.id = li.lot_id
		INNER JOIN owner_lots ol ON ol.lot_id = li.lot_id
		INNER JOIN owners o ON o.id = ol.owner_id
		WHERE li.schedule_id = $1
		ORDER BY l.lot_number, o.name`
	rows, err := r.pool.Query(ctx, q, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Recipient
	for rows.Next() {
		var rc Recipient
		if err := rows.Scan(&rc.OwnerID, &rc.Name, &rc.Email, &rc.LotNumber, &rc.AmountCents); err != nil {
			return nil, err
		}
		list = append(list, rc)
	}
	return list, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) LockSchedule(ctx context.Context, scheduleID uuid.UUID) (*models.LevySchedule, error) {
	q := `SELECT ` + scheduleColumns + `
		FROM levy_schedules ls
		INNER JOIN schemes s ON s.id = ls.scheme_id
		WHERE ls.id = $1
		FOR UPDATE OF ls`
	s, err := scanSchedule(t.tx.QueryRow(ctx, q, scheduleID))
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("levy schedule")
	}
	return s, err
}

func (t *txRepo) CountItems(ctx context.Context, scheduleID uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM levy_items WHERE schedule_id = $1`, scheduleID).Scan(&n)
	return n, err
}

func (t *txRepo) DeleteItems(ctx context.Context, scheduleID uuid.UUID) (int, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM levy_items WHERE schedule_id = $1`, scheduleID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ActiveShares returns active lots ordered by lot number then id, the apportionment tie-break order.
func (t *txRepo) ActiveShares(ctx context.Context, schemeID uuid.UUID) ([]Share, error) {
	const q = `SELECT id, lot_number, entitlement::text
		FROM lots
		WHERE scheme_id = $1 AND status = 'active'
		ORDER BY lot_number, id`
	rows, err := t.tx.Query(ctx, q, schemeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var shares []Share
	for rows.Next() {
		var (
			sh  Share
			raw string
		)
		if err := rows.Scan(&sh.LotID, &sh.LotNumber, &raw); err != nil {
			return nil, err
		}
		if sh.Weight, err = decimal.NewFromString(raw); err != nil {
			return nil, err
		}
		shares = append(shares, sh)
	}
	return shares, rows.Err()
}

func (t *txRepo) InsertItems(ctx context.Context, scheduleID uuid.UUID, items []Allocation) error {
	const q = `INSERT INTO levy_items (schedule_id, lot_id, amount_cents) VALUES ($1, $2, $3)`
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(q, scheduleID, it.LotID, it.AmountCents)
	}
	br := t.tx.SendBatch(ctx, batch)
	for range items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if database.IsUniqueViolation(err) {
				return apperr.Conflict("levies already generated for this schedule")
			}
			return err
		}
	}
	return br.Close()
}

func (t *txRepo) MarkGenerated(ctx context.Context, scheduleID uuid.UUID, at time.Time) error {
	const q = `UPDATE levy_schedules SET status = 'generated', generated_at = $2, updated_at = NOW() WHERE id = $1`
	_, err := t.tx.Exec(ctx, q, scheduleID, at)
	return err
}

func (t *txRepo) DeleteSchedule(ctx context.Context, scheduleID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM levy_schedules WHERE id = $1`, scheduleID)
	return err
}

func scanSchedule(row pgx.Row) (*models.LevySchedule, error) {
	var s models.LevySchedule
	err := row.Scan(&s.ID, &s.OrganizationID, &s.SchemeID, &s.Name, &s.BudgetCents, &s.PeriodStart, &s.PeriodEnd,
		&s.Status, &s.GeneratedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
