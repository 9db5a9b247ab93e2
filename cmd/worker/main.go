// Package main runs the background worker: email delivery, the scheduled Stripe subscription sync
// and a /metrics listener.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/stratum-app/backend/config"
	"github.com/stratum-app/backend/internal/billing"
	"github.com/stratum-app/backend/internal/email"
	"github.com/stratum-app/backend/internal/emaillogs"
	"github.com/stratum-app/backend/internal/metrics"
	"github.com/stratum-app/backend/internal/organizations"
	"github.com/stratum-app/backend/internal/worker"
	"github.com/stratum-app/backend/pkg/database"
	"github.com/stratum-app/backend/pkg/queue"
	"github.com/stratum-app/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	sender, err := email.NewSender(cfg.Email, logger)
	if err != nil {
		logger.Fatal("email sender", zap.Error(err))
	}

	m := metrics.New()
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewEmailProcessor(jobQueue, sender, emaillogs.NewRepository(pool), m, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		processor.Run(gctx)
		return nil
	})

	if cfg.Worker.MetricsEnabled() {
		metricsServer := worker.NewMetricsServer(":"+cfg.Worker.MetricsPort, m, logger)
		g.Go(func() error {
			return metricsServer.Run(gctx)
		})
	}

	if cfg.Stripe.Enabled() {
		billingRepo := billing.NewRepository(pool)
		tiers := billing.NewTierService(billingRepo, cfg.Billing.TierCacheSize, cfg.Billing.TierCacheTTL, m)
		billingSvc := billing.NewService(
			billing.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret),
			organizations.NewRepository(pool), billingRepo, tiers,
			billing.ServiceConfig{PriceTiers: cfg.Stripe.PriceTiers, ReturnURL: cfg.Stripe.PortalReturnURL},
			logger,
		)
		scheduler, err := worker.NewScheduler(cfg.Billing.SyncSchedule, billingSvc, logger)
		if err != nil {
			logger.Fatal("subscription sync schedule", zap.Error(err))
		}
		g.Go(func() error {
			scheduler.Run(gctx)
			return nil
		})
	} else {
		logger.Info("STRIPE_SECRET_KEY not set; subscription sync disabled")
	}

	logger.Info("worker started")
	if err := g.Wait(); err != nil {
		logger.Error("worker", zap.Error(err))
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
