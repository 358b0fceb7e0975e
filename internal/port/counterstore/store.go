// Package counterstore defines the port for the durable shared counter.
package counterstore

import "context"

// Store is the authoritative source of the counter value.
type Store interface {
	// Current returns the counter's current value.
	Current(ctx context.Context) (int64, error)
	// Increment atomically adds one to the counter and returns the new
	// value. The storage layer emits a change event as a side effect;
	// callers never notify subscribers directly.
	Increment(ctx context.Context) (int64, error)
}
