package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

// migrationProvider runs fn with a goose provider over the embedded schema.
// goose needs database/sql, so a short-lived connection is opened for it.
func migrationProvider(ctx context.Context, dsn string, fn func(ctx context.Context, p *goose.Provider) error) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(database.DialectPostgres, db, sub)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	return fn(ctx, p)
}

func logResult(r *goose.MigrationResult) {
	slog.Info("Migration applied",
		"version", r.Source.Version,
		"file", r.Source.Path,
		"direction", r.Direction,
		"duration", r.Duration.String(),
	)
}

// RunMigrations applies every pending migration.
func RunMigrations(ctx context.Context, dsn string) error {
	return migrationProvider(ctx, dsn, func(ctx context.Context, p *goose.Provider) error {
		results, err := p.Up(ctx)
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		for _, r := range results {
			logResult(r)
		}
		return nil
	})
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, dsn string) error {
	return migrationProvider(ctx, dsn, func(ctx context.Context, p *goose.Provider) error {
		r, err := p.Down(ctx)
		if err != nil {
			return fmt.Errorf("rollback migration: %w", err)
		}
		logResult(r)
		return nil
	})
}

// MigrateStatus logs the state of every known migration.
func MigrateStatus(ctx context.Context, dsn string) error {
	return migrationProvider(ctx, dsn, func(ctx context.Context, p *goose.Provider) error {
		statuses, err := p.Status(ctx)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		for _, s := range statuses {
			attrs := []any{"version", s.Source.Version, "file", s.Source.Path, "state", string(s.State)}
			if !s.AppliedAt.IsZero() {
				attrs = append(attrs, "applied_at", s.AppliedAt)
			}
			slog.Info("Migration", attrs...)
		}
		return nil
	})
}
