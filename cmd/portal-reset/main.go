// Command portal-reset revokes owner portal access for every owner registered under an email address.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stratum-app/backend/config"
	"github.com/stratum-app/backend/internal/models"
	"github.com/stratum-app/backend/internal/owners"
	"github.com/stratum-app/backend/pkg/database"
)

// Resetter resets portal access by owner email.
type Resetter interface {
	ResetByEmail(ctx context.Context, email string) ([]*models.Owner, error)
}

// connectFunc opens the store behind a Resetter and returns a release func.
type connectFunc func(ctx context.Context) (Resetter, func(), error)

func main() {
	if err := newRootCmd(connect).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(connect connectFunc) *cobra.Command {
	return &cobra.Command{
		Use:           "portal-reset <email>",
		Short:         "Reset owner portal access for an email address",
		Long:          "Clears the invitation, acceptance and activation of every owner with the given email, in all organisations.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			resetter, release, err := connect(ctx)
			if err != nil {
				return err
			}
			defer release()

			email := args[0]
			reset, err := resetter.ResetByEmail(ctx, email)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(reset) == 0 {
				fmt.Fprintf(out, "No owner found with email %s; nothing to reset\n", email)
				return nil
			}
			for _, o := range reset {
				fmt.Fprintf(out, "Reset portal access for %s %s\n", o.Name, o.Email)
			}
			return nil
		},
	}
}

func connect(ctx context.Context) (Resetter, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, err := logCfg.Build()
	if err != nil {
		return nil, nil, err
	}
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), 2, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	ttl := time.Duration(cfg.Portal.InviteExpireHours) * time.Hour
	svc := owners.NewPortalService(owners.NewRepository(pool), ttl)
	return svc, func() {
		pool.Close()
		_ = logger.Sync()
	}, nil
}
