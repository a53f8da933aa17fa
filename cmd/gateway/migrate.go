package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/database"
)

const migrateUsage = "usage: gateway migrate up|down|status"

// runMigrate applies, rolls back or lists schema migrations without starting
// the gateway. It uses the same configuration lookup as run.
//
// Parameters:
//   - ctx: Context for cancellation
//   - args: Arguments after "migrate"
//   - out: Destination for the status listing
//
// Returns:
//   - error: Usage error, or the first database failure
func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New(migrateUsage)
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-mostly command; close errors are not actionable

	switch args[0] {
	case "up":
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	case "down":
		if err := db.MigrateDown(ctx); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
	case "status":
		applied, pending, err := db.GetMigrationStatus(ctx)
		if err != nil {
			return fmt.Errorf("reading migration status: %w", err)
		}
		for _, m := range applied {
			fmt.Fprintf(out, "applied  %s\n", m.Version)
		}
		for _, m := range pending {
			fmt.Fprintf(out, "pending  %s %s\n", m.Version, m.Name)
		}
	default:
		return fmt.Errorf("unknown migrate command %q; %s", args[0], migrateUsage)
	}

	return nil
}
