// Package sse implements the Server-Sent Events transport adapter for
// counter updates.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/domain/counter"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/port/broadcast"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/port/counterstore"
)

var errClosed = errors.New("sse subscriber closed")

// Handler serves long-lived event-stream responses and registers each
// one as a push subscriber.
type Handler struct {
	registry broadcast.Registrar
	store    counterstore.Store
}

// NewHandler creates an SSE handler over the given registry and store.
func NewHandler(registry broadcast.Registrar, store counterstore.Store) *Handler {
	return &Handler{registry: registry, store: store}
}

// ServeHTTP holds the request open and flushes one event per delivery.
// Registration happens only after the stream headers are out, so a
// subscriber is always ready for pushes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	sub := &subscriber{ctx: ctx, cancel: cancel, pending: make(chan counter.Update, 1)}

	// Queue the current value so the client renders immediately.
	if count, err := h.store.Current(ctx); err == nil {
		sub.pending <- counter.Update{Count: count}
	} else {
		slog.Error("initial count read failed", "error", err)
	}

	handle := h.registry.Register(sub)
	slog.Info("sse subscriber connected", "handle", handle, "remote", r.RemoteAddr)
	defer func() {
		h.registry.Deregister(handle)
		sub.Close()
		slog.Info("sse subscriber disconnected", "handle", handle)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-sub.pending:
			if err := writeEvent(w, u); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes one SSE frame: a data line followed by a blank line.
func writeEvent(w io.Writer, u counter.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// subscriber buffers at most one pending update for its event stream.
type subscriber struct {
	ctx     context.Context
	cancel  context.CancelFunc
	pending chan counter.Update
	once    sync.Once
}

// Deliver queues the update without ever blocking the dispatcher. When
// an unflushed update is still pending it is replaced: only the latest
// value matters.
func (s *subscriber) Deliver(_ context.Context, u counter.Update) error {
	if s.ctx.Err() != nil {
		return errClosed
	}

	select {
	case s.pending <- u:
		return nil
	default:
	}

	// Drop the stale pending value and queue the new one. If the flush
	// loop raced us and took it first, the slot is free again.
	select {
	case <-s.pending:
	default:
	}
	select {
	case s.pending <- u:
	default:
	}
	return nil
}

// Close cancels the stream. Safe to call from both the handler's exit
// path and a failed-delivery cleanup.
func (s *subscriber) Close() {
	s.once.Do(s.cancel)
}
