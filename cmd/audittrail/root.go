package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"audittrail/internal/app"
	"audittrail/internal/config"
	appctx "audittrail/internal/core/context"
	"audittrail/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "audittrail",
	Short:         "Operate the change audit trail",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// withApp loads configuration, sets up logging and connects before running fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(cmd.Context(), log.WithComponent(cmd.Name()))
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error(ctx, "failed to connect to database", "error", err)
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
