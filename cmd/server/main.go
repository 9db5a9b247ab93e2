// Package main runs the strata management HTTP API with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stratum-app/backend/config"
	"github.com/stratum-app/backend/internal/analytics"
	"github.com/stratum-app/backend/internal/auth"
	"github.com/stratum-app/backend/internal/billing"
	"github.com/stratum-app/backend/internal/documents"
	"github.com/stratum-app/backend/internal/emaillogs"
	"github.com/stratum-app/backend/internal/levy"
	"github.com/stratum-app/backend/internal/lots"
	"github.com/stratum-app/backend/internal/metrics"
	"github.com/stratum-app/backend/internal/middleware"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/internal/organizations"
	"github.com/stratum-app/backend/internal/owners"
	"github.com/stratum-app/backend/internal/schemes"
	"github.com/stratum-app/backend/pkg/database"
	"github.com/stratum-app/backend/pkg/queue"
	"github.com/stratum-app/backend/pkg/redis"
	"github.com/stratum-app/backend/pkg/response"
	"github.com/stratum-app/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// A nil object store makes the document endpoints answer 503.
	var objects documents.ObjectStore
	if cfg.AWS.DocumentsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Endpoint:             cfg.AWS.Endpoint,
			Bucket:               cfg.AWS.DocumentsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			objects = s3Client
		}
	}

	var provider billing.Provider
	if cfg.Stripe.Enabled() {
		provider = billing.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set; billing runs offline and every organisation is on the free tier")
	}

	m := metrics.New()
	jwtService := auth.NewJWTService(cfg.JWT.Secret, auth.SessionTTL{
		Staff: time.Duration(cfg.JWT.ExpireHours) * time.Hour,
		Owner: time.Duration(cfg.JWT.PortalExpireHours) * time.Hour,
	})
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth and organizations
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	orgRepo := organizations.NewRepository(pool)
	orgHandler := organizations.NewHandler(orgRepo, authRepo, logger)

	// Billing and feature gate
	billingRepo := billing.NewRepository(pool)
	tiers := billing.NewTierService(billingRepo, cfg.Billing.TierCacheSize, cfg.Billing.TierCacheTTL, m)
	billingSvc := billing.NewService(provider, orgRepo, billingRepo, tiers, billing.ServiceConfig{
		PriceTiers: cfg.Stripe.PriceTiers,
		ReturnURL:  cfg.Stripe.PortalReturnURL,
	}, logger)
	billingHandler := billing.NewHandler(billingSvc, tiers, logger)

	// Schemes, lots, owners
	schemeRepo := schemes.NewRepository(pool)
	schemeHandler := schemes.NewHandler(schemeRepo, tiers, logger)
	lotHandler := lots.NewHandler(lots.NewRepository(pool), logger)
	ownerRepo := owners.NewRepository(pool)
	ownerHandler := owners.NewHandler(ownerRepo, logger)
	portalSvc := owners.NewPortalService(ownerRepo, time.Duration(cfg.Portal.InviteExpireHours)*time.Hour)
	portalHandler := owners.NewPortalHandler(portalSvc, orgRepo, jobQueue, jwtService, ownerRepo, owners.PortalConfig{
		BaseURL:   cfg.Server.PublicBaseURL,
		InviteTTL: time.Duration(cfg.Portal.InviteExpireHours) * time.Hour,
	}, logger)

	// Levies
	levyRepo := levy.NewRepository(pool)
	levyHandler := levy.NewHandler(levy.HandlerDeps{
		Service:   levy.NewService(levyRepo),
		Schedules: levyRepo,
		Notifier:  levy.NewNotifier(levyRepo, jobQueue, logger),
		Features:  tiers,
		Orgs:      orgRepo,
		Schemes:   schemeRepo,
		Metrics:   m,
		Logger:    logger,
	})

	// Documents and email history
	documentHandler := documents.NewHandler(documents.NewRepository(pool), objects, logger)
	emailLogsHandler := emaillogs.NewHandler(emaillogs.NewRepository(pool), logger)
	analyticsHandler := analytics.NewHandler(analytics.NewRepository(pool), logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(m))

	router.GET("/health", func(c *gin.Context) {
		ctx := c.Request.Context()
		status := gin.H{"postgres": "ok", "redis": "ok"}
		healthy := true
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("postgres health check failed", zap.Error(err))
			status["postgres"], healthy = "down", false
		}
		if !rdb.Healthy(ctx) {
			status["redis"], healthy = "down", false
		}
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, response.Body{Data: status, Error: "dependencies unavailable", Code: "unavailable"})
			return
		}
		response.OK(c, status)
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Owner portal invitations (public; the token is the credential)
	invitations := router.Group("/portal/invitations/:token")
	{
		invitations.GET("", portalHandler.GetInvitation)
		invitations.POST("/accept", portalHandler.AcceptInvitation)
		invitations.POST("/activate", portalHandler.ActivateInvitation)
	}

	// Webhooks (no JWT; Stripe signature checked in handler)
	router.POST("/webhooks/stripe", billingHandler.Webhook)

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	api.GET("/auth/me", authHandler.Me)

	// Owner portal (JWT role owner)
	portal := api.Group("/portal", middleware.RequireRole(models.RoleOwner))
	{
		portal.GET("/me", portalHandler.Me)
		portal.GET("/levies", portalHandler.Levies)
		portal.GET("/documents", portalHandler.Documents)
		portal.GET("/documents/:docId/download-url", documentHandler.PortalDownloadURL)
	}

	staff := api.Group("", middleware.RequireRole(models.RoleStaff))
	staff.GET("/organizations", orgHandler.ListMyOrganizations)
	staff.POST("/organizations", orgHandler.CreateOrganization)

	read := staff.Group("/organizations/:id", organizations.RequireOrgAccess(orgRepo, false))
	{
		read.GET("/members", orgHandler.ListMembers)
		read.GET("/features", billingHandler.Features)
		read.GET("/features/:feature", billingHandler.Feature)
		read.GET("/email-logs", emailLogsHandler.List)

		read.GET("/schemes", schemeHandler.List)
		read.GET("/schemes/:schemeId", schemeHandler.Get)
		read.GET("/schemes/:schemeId/summary", analyticsHandler.SchemeSummary)
		read.GET("/schemes/:schemeId/lots", lotHandler.List)
		read.GET("/lots/:lotId", lotHandler.Get)
		read.GET("/owners", ownerHandler.List)
		read.GET("/owners/:ownerId", ownerHandler.Get)

		read.GET("/schemes/:schemeId/levy-schedules", levyHandler.ListSchedules)
		read.GET("/levy-schedules/:scheduleId", levyHandler.GetSchedule)

		read.GET("/schemes/:schemeId/documents", documentHandler.List)
		read.GET("/documents/:docId/download-url", documentHandler.DownloadURL)
	}

	write := staff.Group("/organizations/:id", organizations.RequireOrgAccess(orgRepo, true))
	{
		write.POST("/schemes", schemeHandler.Create)
		write.PUT("/schemes/:schemeId", schemeHandler.Update)
		write.DELETE("/schemes/:schemeId", schemeHandler.Deactivate)
		write.POST("/schemes/:schemeId/activate", schemeHandler.Activate)

		write.POST("/schemes/:schemeId/lots", lotHandler.Create)
		write.PUT("/lots/:lotId", lotHandler.Update)
		write.DELETE("/lots/:lotId", lotHandler.Deactivate)
		write.POST("/lots/:lotId/activate", lotHandler.Activate)

		write.POST("/owners", ownerHandler.Create)
		write.PUT("/owners/:ownerId", ownerHandler.Update)
		write.PUT("/owners/:ownerId/lots/:lotId", ownerHandler.LinkLot)
		write.DELETE("/owners/:ownerId/lots/:lotId", ownerHandler.UnlinkLot)
		write.POST("/owners/:ownerId/portal/invite", billing.RequireFeature(tiers, billing.FeatureOwnerPortal), portalHandler.Invite)

		write.POST("/schemes/:schemeId/levy-schedules", billing.RequireFeature(tiers, billing.FeatureLevyCalculation), levyHandler.CreateSchedule)
		write.POST("/levy-schedules/:scheduleId/generate", billing.RequireFeature(tiers, billing.FeatureLevyCalculation), levyHandler.Generate)
		write.DELETE("/levy-schedules/:scheduleId", levyHandler.DeleteSchedule)

		write.POST("/schemes/:schemeId/documents", billing.RequireFeature(tiers, billing.FeatureDocuments), documentHandler.Upload)
		write.DELETE("/documents/:docId", documentHandler.Delete)
	}

	admin := staff.Group("/organizations/:id", organizations.RequireOrgRole(orgRepo, models.OrgRoleOwner))
	{
		admin.POST("/members", orgHandler.AddMember)
		admin.DELETE("/members/:userId", orgHandler.RemoveMember)
		admin.POST("/owners/:ownerId/portal/reset", portalHandler.Reset)
		admin.POST("/billing/account", billingHandler.CreateAccount)
		admin.POST("/billing/portal", billingHandler.PortalSession)
		admin.POST("/billing/sync", billingHandler.Sync)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
