package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"mustody-console/config"
	"mustody-console/core/store"
	"mustody-console/core/utils"
)

func main() {
	statusOnly := flag.Bool("status", false, "print migration status and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger := utils.NewLoggerWithLevel(cfg.LogLevel)
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalf("db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	status, err := store.GetMigrationStatus(checkCtx, db)
	cancel()
	if err != nil {
		logger.Fatalf("migration status: %v", err)
	}
	if *statusOnly {
		fmt.Printf("current=%d latest=%d pending=%t\n", status.CurrentVersion, status.LatestVersion, status.HasPending)
		return
	}
	if status.HasGooseTable && !status.HasPending {
		logger.Printf("schema up to date version=%d", status.CurrentVersion)
		return
	}
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		logger.Fatalf("migrations: %v", err)
	}
	logger.Printf("migrations applied version=%d", status.LatestVersion)
}
