package main

import (
	"context"

	"github.com/spf13/cobra"

	"audittrail/internal/app"
	"audittrail/pkg/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the audit and outbox tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Migrate(ctx); err != nil {
				logger.Error(ctx, "migration failed", "error", err)
				return err
			}
			logger.Info(ctx, "migration complete")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
