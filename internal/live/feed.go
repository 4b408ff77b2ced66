// Package live streams dashboard updates over a websocket so the UI refreshes
// without polling.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/pulsedash/pulse/internal/api"
)

const (
	feedPath     = "/api/v1/events"
	maxReadBytes = 1 << 20 // 1MiB
	dialTimeout  = 10 * time.Second
)

// KindMetricsUpdated announces a fresh metrics snapshot.
const KindMetricsUpdated = "metricsUpdated"

// Update is one push from the backend.
type Update struct {
	Kind     string
	Overview *api.MetricsOverview // present on metricsUpdated
	At       time.Time
}

// envelope is the wire frame.
type envelope struct {
	Type    string          `json:"type"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Feed maintains one subscription to the backend's update stream, redialing
// with backoff when the connection drops. A handshake rejected with 401 fires
// the unauthorized signal, which forces a logout the same way a rejected HTTP
// request does.
type Feed struct {
	url    string
	client *api.Client
	signal *api.UnauthorizedSignal
	logger *slog.Logger

	updates chan Update

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewFeed builds a feed for the backend at baseURL. The subscription does not
// open until Start.
func NewFeed(baseURL string, client *api.Client, signal *api.UnauthorizedSignal, logger *slog.Logger) *Feed {
	wsURL := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	return &Feed{
		url:     wsURL + feedPath,
		client:  client,
		signal:  signal,
		logger:  logger,
		updates: make(chan Update, 16),
	}
}

// Start opens the subscription, replacing any previous one.
func (f *Feed) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go f.run(ctx)
}

// Stop closes the subscription. Buffered updates stay readable.
func (f *Feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// Updates delivers pushes. The channel is never closed; the UI reads it from
// its event loop for as long as the feed matters to it.
func (f *Feed) Updates() <-chan Update {
	return f.updates
}

func (f *Feed) run(ctx context.Context) {
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: 0.2,
		Multiplier:          1.7,
		MaxInterval:         30 * time.Second,
	}
	bo.Reset()

	for {
		if ctx.Err() != nil {
			return
		}
		err := f.subscribe(ctx, bo)
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("live feed disconnected", "error", err)

		t := time.NewTimer(bo.NextBackOff())
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// subscribe dials once and reads until the connection drops. The backoff is
// reset after a successful handshake so a long-lived connection that drops
// redials quickly.
func (f *Feed) subscribe(ctx context.Context, bo *backoff.ExponentialBackOff) error {
	header := http.Header{}
	if token := f.client.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if id := f.client.DeviceID(); id != "" {
		header.Set(api.DeviceHeader, id)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, resp, err := websocket.Dial(dialCtx, f.url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			f.logger.Warn("live feed handshake rejected, credential invalid")
			f.signal.Fire()
		}
		return fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	conn.SetReadLimit(maxReadBytes)
	f.logger.Info("live feed connected")
	bo.Reset()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read feed: %w", err)
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			f.logger.Warn("bad feed frame", "error", err)
			continue
		}
		f.dispatch(env)
	}
}

func (f *Feed) dispatch(env envelope) {
	switch env.Type {
	case KindMetricsUpdated:
		up := Update{Kind: KindMetricsUpdated, At: env.TS}
		if up.At.IsZero() {
			up.At = time.Now()
		}
		if len(env.Payload) > 0 {
			var overview api.MetricsOverview
			if err := json.Unmarshal(env.Payload, &overview); err != nil {
				f.logger.Warn("bad metrics payload", "error", err)
				return
			}
			up.Overview = &overview
		}
		select {
		case f.updates <- up:
		default:
			f.logger.Debug("live update dropped, consumer busy")
		}
	default:
		// Unknown frame kinds are ignored so the server can add new ones.
	}
}
