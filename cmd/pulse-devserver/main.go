package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsedash/pulse/internal/devserver"
)

func main() {
	// Logger
	logLevel := slog.LevelInfo
	if os.Getenv("PULSE_DEV_LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Config
	cfg, err := devserver.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// SQLite
	db, err := devserver.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Stores
	users := devserver.NewUserStore(db)
	tokens := devserver.NewTokenStore(db)
	metrics := devserver.NewMetricsStore(db)

	ctx := context.Background()

	// Seed data. Reapplying on every start is harmless; user IDs survive.
	seed := devserver.DefaultSeed()
	if cfg.SeedPath != "" {
		seed, err = devserver.LoadSeed(cfg.SeedPath)
		if err != nil {
			logger.Error("failed to load seed file", "path", cfg.SeedPath, "error", err)
			os.Exit(1)
		}
	}
	if err := seed.Apply(ctx, users, metrics); err != nil {
		logger.Error("failed to apply seed", "error", err)
		os.Exit(1)
	}

	if purged, err := tokens.Purge(ctx); err != nil {
		logger.Warn("token purge failed", "error", err)
	} else if purged > 0 {
		logger.Info("purged expired tokens", "count", purged)
	}

	// Live event fan-out
	hub := devserver.NewHub(logger)
	gate := devserver.NewWakeGate(cfg.WakeDelay)

	// Router
	router := devserver.NewRouter(db, users, tokens, metrics, hub, gate, cfg.TokenTTL, logger)

	// Background metrics drift
	pushCtx, stopPusher := context.WithCancel(ctx)
	defer stopPusher()
	pusher := devserver.NewPusher(metrics, hub, cfg.PushInterval, logger)
	go pusher.Run(pushCtx)

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("dev server starting",
			"addr", addr,
			"wake_delay", cfg.WakeDelay.String(),
			"push_interval", cfg.PushInterval.String(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")
	stopPusher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
