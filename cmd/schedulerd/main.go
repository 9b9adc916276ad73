package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"maintenance-scheduler/config"
	"maintenance-scheduler/internal/api"
	"maintenance-scheduler/internal/db"
	"maintenance-scheduler/internal/directory"
	"maintenance-scheduler/internal/events"
	"maintenance-scheduler/internal/logger"
	"maintenance-scheduler/internal/metrics"
	"maintenance-scheduler/internal/notification"
	"maintenance-scheduler/internal/scheduling"
	"maintenance-scheduler/internal/sequence"
	"maintenance-scheduler/internal/store"
	"maintenance-scheduler/internal/sweeper"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	appLog, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer appLog.Sync()
	appLog.Info("configuration loaded", "path", configPath)

	gormDB, err := db.Init(&cfg.Database, appLog)
	if err != nil {
		appLog.Fatal("failed to initialize database", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)
	appStore := store.NewGormStore(gormDB)
	dir := directory.New(appStore, cfg.Directory.CacheTTL)

	var (
		publisher      events.Publisher = events.LogPublisher{Log: appLog.With("component", "events")}
		webpushOptions *webpush.Options
	)
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, gormDB, webpushOptions, appLog.With("component", "push"))
		pool.Start(ctx)
		publisher = pool
		appLog.Info("web push alerts enabled", "workers", cfg.WorkerPool.Size)
	} else {
		appLog.Warn("VAPID keys are not configured; occurrence events are only logged")
	}

	orchestrator := scheduling.New(appStore, sequence.NewAllocator(gormDB, m), dir, publisher, appLog.With("component", "scheduling"), m)

	sweeperSvc, err := sweeper.NewService(cfg.Sweeper, appStore, publisher, appLog.With("component", "sweeper"), m)
	if err != nil {
		appLog.Fatal("failed to create sweeper", "error", err)
	}
	go sweeperSvc.Run(ctx)

	router := api.NewRouter(appStore, orchestrator, webpushOptions, cfg.Server)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("HTTP server ListenAndServe", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	appLog.Info("shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server Shutdown", "error", err)
	}

	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}
	appLog.Info("server gracefully stopped")
}
