package cmd

import (
	"context"
	"log/slog"

	"github.com/matrixise/survey-gate/internal/config"
	"github.com/matrixise/survey-gate/internal/storage"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
	Long:  `Run, rollback, or check the status of database migrations.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrations(cmd, "Migrations applied successfully", storage.RunMigrations)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Rollback the last migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrations(cmd, "Migration rolled back successfully", storage.MigrateDown)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrations(cmd, "", storage.MigrateStatus)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func withMigrations(cmd *cobra.Command, done string, fn func(ctx context.Context, dsn string) error) error {
	setupLogger(cmd, nil)

	dsn, err := config.DatabaseURL()
	if err != nil {
		return err
	}

	if err := fn(cmd.Context(), dsn); err != nil {
		slog.Error("Migration command failed", "command", cmd.Name(), "error", err)
		return err
	}

	if done != "" {
		slog.Info(done)
	}
	return nil
}
