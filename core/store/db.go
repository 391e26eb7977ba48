package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"mustody-console/config"
	"mustody-console/core/utils"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// NewDB opens the durable client-state database. The connection pool is
// capped at one connection: the store has a single writer per instance.
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	path := strings.TrimSpace(cfg.Store.DBPath)
	if path == "" {
		return nil, errors.New("store.db_path is required")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, err
			}
		}
	}
	db, err := sql.Open(sqliteDriverName, path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		if logger != nil {
			logger.Errorf("db open failed: %v", err)
		}
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if logger != nil {
		logger.Printf("db open sqlite path=%s", path)
	}
	return db, nil
}
