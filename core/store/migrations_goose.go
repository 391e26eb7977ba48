package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"mustody-console/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var gooseMigrationsFS embed.FS

const (
	gooseTable    = "goose_db_version"
	migrationsDir = "migrations"
)

func ApplyMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	goose.SetBaseFS(gooseMigrationsFS)
	goose.SetLogger(goose.NopLogger())
	if logger != nil {
		logger.Printf("applying goose migrations")
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return err
	}
	if logger != nil {
		logger.Printf("goose migrations applied")
	}
	return nil
}

func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
