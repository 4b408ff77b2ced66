package devserver

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(
	db *DB,
	users *UserStore,
	tokens *TokenStore,
	metrics *MetricsStore,
	hub *Hub,
	gate *WakeGate,
	tokenTTL time.Duration,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	// Handlers
	healthH := NewHealthHandler(db, gate)
	authH := NewAuthHandler(users, tokens, tokenTTL, logger)
	metricsH := NewMetricsHandler(metrics, logger)
	eventsH := NewEventsHandler(hub, logger)

	// Probes. /api/health is the legacy readiness alias older clients fall
	// back to.
	r.Get("/health", healthH.Health)
	r.Get("/ready", healthH.Ready)
	r.Get("/api/health", healthH.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authH.Login)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(tokens))

			r.Get("/auth/me", authH.Me)
			r.Get("/metrics/overview", metricsH.Overview)
			r.Get("/events", eventsH.Events)
		})
	})

	return r
}
