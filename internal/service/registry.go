// Package service implements the change-notification broadcaster core:
// the subscriber registry, the fan-out dispatcher, and the change
// listener that ties the store's event feed to the dispatcher.
package service

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/port/broadcast"
)

// Entry pairs a registered subscriber with its handle.
type Entry struct {
	Handle string
	Sub    broadcast.Subscriber
}

// Registry tracks live push subscribers keyed by handle. It is the only
// shared mutable structure in the broadcaster; all access goes through
// the mutex so an iterating dispatch never observes a half-removed entry.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]broadcast.Subscriber
}

// NewRegistry creates an empty subscriber registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]broadcast.Subscriber)}
}

// Register adds a subscriber and returns its handle.
func (r *Registry) Register(sub broadcast.Subscriber) string {
	handle := uuid.NewString()

	r.mu.Lock()
	r.subs[handle] = sub
	r.mu.Unlock()

	return handle
}

// Deregister removes the handle. Removing an absent handle is a no-op:
// the transport's close path and a failed-delivery cleanup may race to
// remove the same entry.
func (r *Registry) Deregister(handle string) {
	r.mu.Lock()
	delete(r.subs, handle)
	r.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the current entries, safe to
// iterate while connections keep opening and closing.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.subs))
	for handle, sub := range r.subs {
		entries = append(entries, Entry{Handle: handle, Sub: sub})
	}
	return entries
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
