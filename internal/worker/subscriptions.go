package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SubscriptionSyncer refreshes every linked billing account.
type SubscriptionSyncer interface {
	SyncAll(ctx context.Context) (synced, failed int, err error)
}

// syncTimeout bounds a single scheduled sync run.
const syncTimeout = 10 * time.Minute

// Scheduler runs periodic maintenance jobs on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewScheduler registers the subscription sync on spec, e.g. "@every 6h" or "0 */6 * * *".
func NewScheduler(spec string, syncer SubscriptionSyncer, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		syncSubscriptions(ctx, syncer, logger)
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: c, logger: logger}, nil
}

func syncSubscriptions(ctx context.Context, syncer SubscriptionSyncer, logger *zap.Logger) {
	logger.Info("starting subscription sync")
	synced, failed, err := syncer.SyncAll(ctx)
	if err != nil {
		logger.Error("subscription sync failed", zap.Error(err), zap.Int("synced", synced), zap.Int("failed", failed))
		return
	}
	logger.Info("subscription sync completed", zap.Int("synced", synced), zap.Int("failed", failed))
}

// Run starts the scheduler and blocks until ctx is done, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	s.logger.Info("scheduler started")
	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
}
