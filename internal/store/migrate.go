package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"

	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrations embed.FS

// dialects maps database/sql driver names to goose dialects and migration dirs.
var dialects = map[string]string{
	"mysql":  "mysql",
	"pgx":    "postgres",
	"sqlite": "sqlite3",
}

func migrationDir(driver string) (dialect, dir string, err error) {
	dialect, ok := dialects[driver]
	if !ok {
		return "", "", fmt.Errorf("no migrations for driver %q", driver)
	}
	return dialect, path.Join("migrations", dialect), nil
}

// Migrate applies all pending migrations for driver.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	dialect, dir, err := migrationDir(driver)
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// MigrationStatus returns the applied schema version and the newest
// version embedded in the binary.
func MigrationStatus(ctx context.Context, db *sql.DB, driver string) (current, latest int64, err error) {
	dialect, dir, err := migrationDir(driver)
	if err != nil {
		return 0, 0, err
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return 0, 0, fmt.Errorf("setting goose dialect: %w", err)
	}

	current, err = goose.GetDBVersionContext(ctx, db)
	if err != nil {
		current = 0
	}

	all, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
	if err != nil {
		return 0, 0, fmt.Errorf("collecting migrations: %w", err)
	}
	if last, err := all.Last(); err == nil {
		latest = last.Version
	}
	return current, latest, nil
}
