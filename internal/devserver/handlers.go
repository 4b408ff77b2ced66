package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/pulsedash/pulse/internal/api"
)

// WakeGate simulates a platform cold start: liveness and readiness report 503
// until the configured delay has elapsed since process start.
type WakeGate struct {
	startedAt time.Time
	delay     time.Duration
	now       func() time.Time
}

func NewWakeGate(delay time.Duration) *WakeGate {
	return &WakeGate{startedAt: time.Now(), delay: delay, now: time.Now}
}

func (g *WakeGate) Awake() bool {
	return g.now().Sub(g.startedAt) >= g.delay
}

type HealthHandler struct {
	db   *DB
	gate *WakeGate
}

func NewHealthHandler(db *DB, gate *WakeGate) *HealthHandler {
	return &HealthHandler{db: db, gate: gate}
}

// Health is the liveness probe.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !h.gate.Awake() {
		writeError(w, http.StatusServiceUnavailable, "waking up")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready is the readiness probe: up counts only if the store answers.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.gate.Awake() {
		writeError(w, http.StatusServiceUnavailable, "waking up")
		return
	}
	if err := h.db.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type AuthHandler struct {
	users  *UserStore
	tokens *TokenStore
	ttl    time.Duration
	logger *slog.Logger
}

func NewAuthHandler(users *UserStore, tokens *TokenStore, ttl time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, ttl: ttl, logger: logger}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type loginResponse struct {
	Token   string      `json:"token"`
	Profile api.Profile `json:"profile"`
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	identifier := strings.ToLower(strings.TrimSpace(req.Identifier))
	if identifier == "" || req.Secret == "" {
		writeError(w, http.StatusBadRequest, "identifier and secret are required")
		return
	}

	// Unknown user and wrong password get the same answer.
	user, err := h.users.ByEmail(r.Context(), identifier)
	if err != nil {
		if !errors.Is(err, ErrNoUser) {
			h.logger.Error("user lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "user lookup failed")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Secret)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.tokens.Mint(r.Context(), user.ID, h.ttl)
	if err != nil {
		h.logger.Error("token mint failed", "error", err)
		writeError(w, http.StatusInternalServerError, "token mint failed")
		return
	}

	h.logger.Info("login", "user", user.Email)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Profile: user.Profile()})
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

type MetricsHandler struct {
	metrics *MetricsStore
	logger  *slog.Logger
}

func NewMetricsHandler(metrics *MetricsStore, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, logger: logger}
}

// Overview handles GET /api/v1/metrics/overview
func (h *MetricsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.metrics.Latest(r.Context())
	if err != nil {
		if errors.Is(err, ErrNoMetrics) {
			writeError(w, http.StatusNotFound, "no metrics stored")
			return
		}
		h.logger.Error("metrics query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "metrics query failed")
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

type EventsHandler struct {
	hub    *Hub
	logger *slog.Logger
}

func NewEventsHandler(hub *Hub, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, logger: logger}
}

// Events handles GET /api/v1/events. BearerAuth has already rejected dead
// credentials with a plain 401 before any upgrade happens here.
func (h *EventsHandler) Events(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // dev server, any origin
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	h.logger.Info("events subscriber connected", "user", user.Email)

	err = h.hub.Serve(r.Context(), conn)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("events subscriber gone", "error", err)
	}
}
