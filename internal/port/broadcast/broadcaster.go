// Package broadcast defines the ports for pushing counter updates to
// connected clients.
package broadcast

import (
	"context"

	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/domain/counter"
)

// Subscriber is one live push connection, independent of transport.
type Subscriber interface {
	// Deliver writes the update to the underlying connection. A failed
	// delivery means the connection is no longer usable.
	Deliver(ctx context.Context, u counter.Update) error
	// Close releases the connection's resources and cancels any
	// in-flight delivery. Closing more than once is safe.
	Close()
}

// Registrar tracks live subscribers. Transport adapters register a
// subscriber once the connection is ready to accept pushes and
// deregister it on close or error.
type Registrar interface {
	Register(sub Subscriber) string
	Deregister(handle string)
}

// Broadcaster delivers a counter value to every registered subscriber.
type Broadcaster interface {
	Broadcast(ctx context.Context, count int64)
}
