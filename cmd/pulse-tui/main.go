package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pulsedash/pulse/internal/api"
	"github.com/pulsedash/pulse/internal/boot"
	"github.com/pulsedash/pulse/internal/config"
	"github.com/pulsedash/pulse/internal/live"
	"github.com/pulsedash/pulse/internal/nav"
	"github.com/pulsedash/pulse/internal/session"
	"github.com/pulsedash/pulse/internal/storage"
	"github.com/pulsedash/pulse/internal/tui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pulse: %v\n", err)
		os.Exit(1)
	}

	// The alt-screen UI owns the terminal, so logs go to a file.
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "pulse: create data dir: %v\n", err)
		os.Exit(1)
	}
	logFile, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pulse: open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	store, err := storage.Open(cfg.DBPath())
	if err != nil {
		logger.Error("failed to open local store", "error", err)
		fmt.Fprintf(os.Stderr, "pulse: open local store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	deviceID, err := store.EnsureDeviceID(ctx)
	if err != nil {
		logger.Warn("device id unavailable", "error", err)
	}

	unauthorized := api.NewUnauthorizedSignal()
	client := api.NewClient(cfg.APIBaseURL, unauthorized, logger.With("module", "api"))
	client.SetDeviceID(deviceID)

	navCtl := nav.NewController(logger.With("module", "nav"))

	sessions := session.NewManager(store, client, unauthorized, navCtl, logger.With("module", "session"))
	defer sessions.Close()
	go sessions.Hydrate(ctx)

	policies := boot.DefaultPolicies()
	if cfg.WakeBudget > 0 {
		policies.Wake.TotalBudget = time.Duration(cfg.WakeBudget)
	}
	if cfg.ReadyBudget > 0 {
		policies.Ready.TotalBudget = time.Duration(cfg.ReadyBudget)
	}
	if cfg.FallbackBudget > 0 {
		policies.Fallback.TotalBudget = time.Duration(cfg.FallbackBudget)
	}

	coordinator := boot.NewCoordinator(cfg.APIBaseURL, client, sessions, navCtl, policies, logger.With("module", "boot"))

	var feed *live.Feed
	if cfg.LiveUpdatesEnabled() && cfg.APIBaseURL != "" {
		feed = live.NewFeed(cfg.APIBaseURL, client, unauthorized, logger.With("module", "live"))
	}

	model := tui.NewModel(tui.App{
		Cfg:      cfg,
		Client:   client,
		Sessions: sessions,
		Boot:     coordinator,
		Live:     feed,
		Logger:   logger,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())

	// Screen resets arrive through the program's message pump. Attach happens
	// before Run, and the first readiness run starts from the model's Init,
	// so no reset can be dropped.
	navCtl.Attach(func(msg nav.ResetMsg) {
		p.Send(msg)
	})

	logger.Info("pulse starting", "base_url", cfg.APIBaseURL, "live_updates", cfg.LiveUpdatesEnabled())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}

	if feed != nil {
		feed.Stop()
	}
	logger.Info("pulse stopped")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
