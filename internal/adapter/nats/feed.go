// Package nats implements the change feed port over core NATS.
//
// Used by deployments where the increment path publishes a change ping
// to a broker instead of relying on a database trigger. Messages are
// fire-and-refetch signals, so plain NATS is enough; there is no
// durable replay.
package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/port/changefeed"
)

// Feed implements changefeed.Feed using a NATS subject.
type Feed struct {
	nc      *nats.Conn
	subject string
}

// Connect establishes a NATS connection for the given subject.
func Connect(url, subject string) (*Feed, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	slog.Info("nats connected", "url", url, "subject", subject)
	return &Feed{nc: nc, subject: subject}, nil
}

// Subscribe opens a subscription on the feed's subject and converts
// incoming messages to change events. The returned channel closes when
// ctx is cancelled or the subscription fails.
func (f *Feed) Subscribe(ctx context.Context) (<-chan changefeed.Event, error) {
	msgs := make(chan *nats.Msg, 64)
	sub, err := f.nc.ChanSubscribe(f.subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", f.subject, err)
	}

	events := make(chan changefeed.Event)
	go func() {
		defer close(events)
		defer func() { _ = sub.Unsubscribe() }()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case events <- changefeed.Event{Channel: msg.Subject, Payload: string(msg.Data)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

// Close shuts down the NATS connection.
func (f *Feed) Close() error {
	f.nc.Close()
	return nil
}
