package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"time"
)

type MigrationStatus struct {
	NowUTC time.Time `json:"now_utc"`

	HasGooseTable  bool  `json:"has_goose_table"`
	CurrentVersion int64 `json:"current_version"`
	LatestVersion  int64 `json:"latest_version"`
	HasPending     bool  `json:"has_pending"`
}

func GetMigrationStatus(ctx context.Context, db *sql.DB) (MigrationStatus, error) {
	now := time.Now().UTC()
	latest, err := latestGooseMigrationVersion()
	if err != nil {
		return MigrationStatus{NowUTC: now}, err
	}
	if db == nil {
		return MigrationStatus{NowUTC: now, LatestVersion: latest}, fmt.Errorf("nil db")
	}
	hasGoose, err := tableExists(ctx, db, gooseTable)
	if err != nil {
		return MigrationStatus{NowUTC: now, LatestVersion: latest}, err
	}
	current := int64(0)
	if hasGoose {
		if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version_id), 0) FROM `+gooseTable).Scan(&current); err != nil {
			return MigrationStatus{NowUTC: now, LatestVersion: latest}, err
		}
	}
	return MigrationStatus{
		NowUTC:         now,
		HasGooseTable:  hasGoose,
		CurrentVersion: current,
		LatestVersion:  latest,
		HasPending:     latest > current,
	}, nil
}

func latestGooseMigrationVersion() (int64, error) {
	entries, err := fs.Glob(gooseMigrationsFS, migrationsDir+"/*.sql")
	if err != nil {
		return 0, err
	}
	var max int64
	for _, p := range entries {
		// filename: 00001_client_state.sql
		parts := strings.SplitN(path.Base(p), "_", 2)
		n, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max, nil
}
