// Package ws implements the WebSocket transport adapter for counter updates.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/domain/counter"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/port/broadcast"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/port/counterstore"
)

// Handler upgrades HTTP requests to WebSocket connections and registers
// each one as a push subscriber.
type Handler struct {
	registry broadcast.Registrar
	store    counterstore.Store
}

// NewHandler creates a WebSocket handler over the given registry and store.
func NewHandler(registry broadcast.Registrar, store counterstore.Store) *Handler {
	return &Handler{registry: registry, store: store}
}

// ServeHTTP accepts the WebSocket handshake, pushes the current count,
// and registers the connection. Registration happens only after the
// accept succeeded, so a subscriber is always ready for pushes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	sub := &subscriber{conn: conn, ctx: ctx, cancel: cancel}

	// Initial value goes out before registration so a racing broadcast
	// cannot deliver ahead of it.
	if count, err := h.store.Current(ctx); err == nil {
		if err := sub.Deliver(ctx, counter.Update{Count: count}); err != nil {
			sub.Close()
			return
		}
	} else {
		slog.Error("initial count read failed", "error", err)
	}

	handle := h.registry.Register(sub)
	slog.Info("websocket subscriber connected", "handle", handle, "remote", r.RemoteAddr)
	defer func() {
		h.registry.Deregister(handle)
		sub.Close()
		slog.Info("websocket subscriber disconnected", "handle", handle)
	}()

	// Read loop: no further client input is expected, but reading is
	// what detects the client closing the connection. Holding the
	// handler open keeps the request context alive for pushes.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// subscriber adapts one WebSocket connection to the broadcast port.
type subscriber struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// Deliver writes one complete text frame carrying the update. The write
// is bound to the connection's context so Close cancels an in-flight
// delivery.
func (s *subscriber) Deliver(_ context.Context, u counter.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	if err := s.conn.Write(s.ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close tears down the connection. Safe to call from both the read loop
// and a failed-delivery cleanup.
func (s *subscriber) Close() {
	s.once.Do(func() {
		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
	})
}
