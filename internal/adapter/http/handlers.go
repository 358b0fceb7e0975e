// Package http provides the HTTP handlers and middleware for the counter API.
package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/domain"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/domain/counter"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/port/counterstore"
)

// Version is the API version reported by the root endpoint.
const Version = "1.0"

// Handlers bundles the dependencies for the request handlers.
type Handlers struct {
	Store counterstore.Store
}

// MountRoutes attaches the counter API routes to the router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/", h.Root)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/count", h.GetCount)
		r.Patch("/count", h.IncrementCount)
	})
}

// Root returns the service banner.
func (h *Handlers) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "counter broadcast service",
		"version": Version,
	})
}

// GetCount returns the current counter value.
func (h *Handlers) GetCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.Store.Current(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no count found")
			return
		}
		slog.Error("read count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read count")
		return
	}
	writeJSON(w, http.StatusOK, counter.Update{Count: count})
}

// IncrementCount bumps the counter and returns the new value. Fan-out
// to subscribers happens via the change feed, never from this path.
func (h *Handlers) IncrementCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.Store.Increment(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no counter row to increment")
			return
		}
		slog.Error("increment count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to increment count")
		return
	}
	writeJSON(w, http.StatusOK, counter.Update{Count: count})
}
