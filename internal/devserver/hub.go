package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// frame is the wire envelope pushed to event subscribers.
type frame struct {
	Type    string          `json:"type"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscriber struct {
	frames chan []byte
}

// Hub fans broadcast frames out to every connected events subscriber. Slow
// subscribers drop frames rather than stall the broadcaster.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// Count reports the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Broadcast marshals the payload into an event frame and queues it on every
// subscriber.
func (h *Hub) Broadcast(frameType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(frame{Type: frameType, TS: time.Now().UTC(), Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.frames <- data:
		default:
			h.logger.Debug("event frame dropped, subscriber busy")
		}
	}
	return nil
}

// Serve pumps broadcast frames to one connection until the client goes away
// or ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn) error {
	sub := &subscriber{frames: make(chan []byte, 8)}
	h.add(sub)
	defer h.remove(sub)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The feed is push-only; the read loop exists to notice the client
	// closing the connection.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-sub.frames:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			wcancel()
			if err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
		}
	}
}
