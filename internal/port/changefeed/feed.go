// Package changefeed defines the port for counter change notifications.
package changefeed

import "context"

// Event is an opaque change signal from the storage layer. The payload
// is advisory only: notifications may be coalesced or delivered out of
// order, so consumers must re-read the store rather than trust it.
type Event struct {
	Channel string
	Payload string
}

// Feed produces change events from a storage or messaging backend.
type Feed interface {
	// Subscribe opens a stream of change events. The returned channel
	// closes when ctx is cancelled or the underlying subscription
	// fails; a closed stream is not restartable and the caller must
	// call Subscribe again.
	Subscribe(ctx context.Context) (<-chan Event, error)
}
