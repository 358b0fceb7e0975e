package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/port/changefeed"
)

// Listener implements changefeed.Feed over Postgres LISTEN/NOTIFY.
// Each subscription uses its own dedicated connection: LISTEN state is
// per-connection and must not leak back into the shared pool.
type Listener struct {
	dsn     string
	channel string
}

// NewListener creates a change feed for the given NOTIFY channel.
func NewListener(dsn, channel string) *Listener {
	return &Listener{dsn: dsn, channel: channel}
}

// Subscribe connects, issues LISTEN, and pumps notifications into the
// returned channel. The channel closes when ctx is cancelled or the
// connection fails; the caller resubscribes.
func (l *Listener) Subscribe(ctx context.Context) (<-chan changefeed.Event, error) {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("listen %s: %w", l.channel, err)
	}

	events := make(chan changefeed.Event)
	go func() {
		defer close(events)
		defer func() { _ = conn.Close(context.Background()) }()

		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("notification wait failed", "channel", l.channel, "error", err)
				}
				return
			}

			select {
			case events <- changefeed.Event{Channel: n.Channel, Payload: n.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
