package owners

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stratum-app/backend/internal/models"
)

// PortalLevy is one levy line visible to a portal user.
type PortalLevy struct {
	ItemID       uuid.UUID `json:"item_id"`
	ScheduleID   uuid.UUID `json:"schedule_id"`
	ScheduleName string    `json:"schedule_name"`
	SchemeName   string    `json:"scheme_name"`
	LotNumber    int       `json:"lot_number"`
	AmountCents  int64     `json:"amount_cents"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
}

// LeviesForUser lists the levy items of every lot held by the portal user's activated owner records.
func (r *Repository) LeviesForUser(ctx context.Context, userID uuid.UUID) ([]PortalLevy, error) {
	const q = `SELECT DISTINCT li.id, ls.id, ls.name, s.name, l.lot_number, li.amount_cents, ls.period_start, ls.period_end
		FROM owners o
		JOIN owner_lots ol ON ol.owner_id = o.id
		JOIN lots l ON l.id = ol.lot_id
		JOIN schemes s ON s.id = l.scheme_id AND s.organization_id = o.organization_id
		JOIN levy_items li ON li.lot_id = l.id
		JOIN levy_schedules ls ON ls.id = li.schedule_id
		WHERE o.portal_user_id = $1 AND o.portal_activated_at IS NOT NULL
		ORDER BY ls.period_start DESC, l.lot_number`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []PortalLevy{}
	for rows.Next() {
		var p PortalLevy
		if err := rows.Scan(&p.ItemID, &p.ScheduleID, &p.ScheduleName, &p.SchemeName, &p.LotNumber, &p.AmountCents, &p.PeriodStart, &p.PeriodEnd); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// DocumentsForUser lists documents of every scheme in which the portal user holds a lot.
func (r *Repository) DocumentsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Document, error) {
	const q = `SELECT d.id, d.scheme_id, d.title, d.category, d.file_name, d.content_type, d.size_bytes, d.s3_key, d.uploaded_by, d.created_at
		FROM documents d
		WHERE d.scheme_id IN (
			SELECT l.scheme_id
			FROM owners o
			JOIN owner_lots ol ON ol.owner_id = o.id
			JOIN lots l ON l.id = ol.lot_id
			WHERE o.portal_user_id = $1 AND o.portal_activated_at IS NOT NULL
		)
		ORDER BY d.created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Document{}
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.SchemeID, &d.Title, &d.Category, &d.FileName, &d.ContentType, &d.SizeBytes, &d.S3Key, &d.UploadedBy, &d.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &d)
	}
	return list, rows.Err()
}
