package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mustody-console/config"
	"mustody-console/core/appbootstrap"
	"mustody-console/core/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger := utils.NewLoggerWithLevel(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := appbootstrap.InitRuntime(ctx, cfg, logger, appbootstrap.Options{})
	if err != nil {
		logger.Fatalf("runtime init: %v", err)
	}
	defer rt.Close()

	rt.StartBackground(ctx)
	go func() {
		if err := rt.Server.Start(); err != nil {
			logger.Fatalf("server: %v", err)
		}
	}()
	logger.Printf("mustody console listening on %s", cfg.ListenAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := rt.Server.Stop(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown: %v", err)
	}
	if err := rt.StopBackground(shutdownCtx); err != nil {
		logger.Errorf("background shutdown: %v", err)
	}
}
