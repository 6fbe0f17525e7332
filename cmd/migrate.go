package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/javezbak/Jarrarium-Time-Lapse/internal/config"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/store"
)

var dryRun bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	setupLogging()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Storage.ConnectTimeout)
	defer cancel()

	db, err := sqlx.Open(cfg.DriverName(), cfg.DSN())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", displayDSN(cfg), err)
	}

	if dryRun {
		slog.Info("dry run mode, showing pending migrations")
		return showPendingMigrations(ctx, db, cfg.DriverName())
	}

	if err := store.Migrate(ctx, db.DB, cfg.DriverName()); err != nil {
		return err
	}
	slog.Info("migrations complete", "driver", cfg.Storage.Driver)
	return nil
}

func showPendingMigrations(ctx context.Context, db *sqlx.DB, driver string) error {
	current, latest, err := store.MigrationStatus(ctx, db.DB, driver)
	if err != nil {
		return err
	}
	slog.Info("migration status",
		"current_version", current,
		"latest_version", latest,
		"pending", latest > current,
		"driver", driver,
	)
	return nil
}
