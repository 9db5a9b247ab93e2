package levy

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stratum-app/backend/internal/apperr"
	"github.com/stratum-app/backend/internal/models"
)

// Store runs levy writes inside a single transaction.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
}

// TxStore is the transaction-scoped view used by Service.
type TxStore interface {
	// LockSchedule loads the schedule and holds a row lock until the transaction ends.
	LockSchedule(ctx context.Context, scheduleID uuid.UUID) (*models.LevySchedule, error)
	CountItems(ctx context.Context, scheduleID uuid.UUID) (int, error)
	DeleteItems(ctx context.Context, scheduleID uuid.UUID) (int, error)
	ActiveShares(ctx context.Context, schemeID uuid.UUID) ([]Share, error)
	InsertItems(ctx context.Context, scheduleID uuid.UUID, items []Allocation) error
	MarkGenerated(ctx context.Context, scheduleID uuid.UUID, at time.Time) error
	DeleteSchedule(ctx context.Context, scheduleID uuid.UUID) error
}

// GenerateOptions controls regeneration.
type GenerateOptions struct {
	// Replace discards previously generated items instead of rejecting the request.
	Replace bool
}

// GenerateResult summarises a generation.
type GenerateResult struct {
	ScheduleID   uuid.UUID    `json:"schedule_id"`
	ItemsCreated int          `json:"items_created"`
	Replaced     int          `json:"replaced"`
	BudgetCents  int64        `json:"budget_cents"`
	Allocations  []Allocation `json:"allocations"`
	Note         string       `json:"note"`
}

// Service generates and removes levy items.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a levy service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Generate apportions the schedule's budget across the scheme's active lots and persists
// one item per lot. Either every item is written or none is.
func (s *Service) Generate(ctx context.Context, orgID, scheduleID uuid.UUID, opts GenerateOptions) (*GenerateResult, error) {
	var res *GenerateResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx TxStore) error {
		schedule, err := lockOwned(ctx, tx, orgID, scheduleID)
		if err != nil {
			return err
		}

		existing, err := tx.CountItems(ctx, scheduleID)
		if err != nil {
			return err
		}
		replaced := 0
		if existing > 0 {
			if !opts.Replace {
				return apperr.Conflict("levies already generated for this schedule")
			}
			if replaced, err = tx.DeleteItems(ctx, scheduleID); err != nil {
				return err
			}
		}

		shares, err := tx.ActiveShares(ctx, schedule.SchemeID)
		if err != nil {
			return err
		}
		allocs, rec, err := Apportion(schedule.BudgetCents, shares)
		if err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, scheduleID, allocs); err != nil {
			return err
		}
		if err := tx.MarkGenerated(ctx, scheduleID, s.now().UTC()); err != nil {
			return err
		}

		res = &GenerateResult{
			ScheduleID:   scheduleID,
			ItemsCreated: len(allocs),
			Replaced:     replaced,
			BudgetCents:  rec.BudgetCents,
			Allocations:  allocs,
			Note:         rec.Note,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteSchedule removes a schedule. A schedule with items is only removed when cascade is set,
// in which case the items go in the same transaction.
func (s *Service) DeleteSchedule(ctx context.Context, orgID, scheduleID uuid.UUID, cascade bool) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx TxStore) error {
		if _, err := lockOwned(ctx, tx, orgID, scheduleID); err != nil {
			return err
		}
		n, err := tx.CountItems(ctx, scheduleID)
		if err != nil {
			return err
		}
		if n > 0 {
			if !cascade {
				return apperr.Conflict("schedule has %d levy items; delete with cascade=true to remove them", n)
			}
			if _, err := tx.DeleteItems(ctx, scheduleID); err != nil {
				return err
			}
		}
		return tx.DeleteSchedule(ctx, scheduleID)
	})
}

func lockOwned(ctx context.Context, tx TxStore, orgID, scheduleID uuid.UUID) (*models.LevySchedule, error) {
	schedule, err := tx.LockSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	// Another organisation's schedule is reported as missing so ids do not leak across tenants.
	if schedule.OrganizationID != orgID {
		return nil, apperr.NotFound("levy schedule")
	}
	return schedule, nil
}
