package service

import (
	"context"
	"log/slog"
	"time"

	otelx "github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/adapter/otel"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/port/broadcast"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/port/changefeed"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/port/counterstore"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/resilience"
)

// ChangeListener holds the long-lived subscription to the store's
// change feed. On each event it re-reads the authoritative value and
// hands it to the broadcaster; event payloads are never trusted because
// the underlying notification mechanism may coalesce or reorder them.
//
// One listener runs per process, owned by main with an explicit
// Start/Stop lifecycle. A dropped feed is resubscribed with bounded
// exponential backoff; the direct read/increment path is unaffected
// while the feed is down.
type ChangeListener struct {
	feed    changefeed.Feed
	store   counterstore.Store
	bc      broadcast.Broadcaster
	backoff *resilience.Backoff
	metrics *otelx.Metrics // optional

	cancel context.CancelFunc
	done   chan struct{}
}

// NewChangeListener creates a listener wiring feed events to the broadcaster.
// metrics may be nil.
func NewChangeListener(feed changefeed.Feed, store counterstore.Store, bc broadcast.Broadcaster, backoff *resilience.Backoff, metrics *otelx.Metrics) *ChangeListener {
	return &ChangeListener{
		feed:    feed,
		store:   store,
		bc:      bc,
		backoff: backoff,
		metrics: metrics,
	}
}

// Start launches the listen loop in the background.
func (l *ChangeListener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx)
}

// Stop cancels the listen loop and waits for it to exit.
func (l *ChangeListener) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

func (l *ChangeListener) run(ctx context.Context) {
	defer close(l.done)

	for {
		events, err := l.feed.Subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("change feed subscribe failed", "error", err)
			if l.metrics != nil {
				l.metrics.FeedResubscribes.Add(ctx, 1)
			}
			if !l.wait(ctx) {
				return
			}
			continue
		}

		l.backoff.Reset()
		slog.Info("change feed subscribed")

		l.pump(ctx, events)

		if ctx.Err() != nil {
			return
		}
		slog.Warn("change feed closed, resubscribing")
		if l.metrics != nil {
			l.metrics.FeedResubscribes.Add(ctx, 1)
		}
		if !l.wait(ctx) {
			return
		}
	}
}

// pump drains events until the stream closes, coalescing bursts so that
// at most one refresh is pending at a time. The value delivered is
// always a fresh read, so the last increment's value reaches every
// subscriber even when intermediate events collapse.
func (l *ChangeListener) pump(ctx context.Context, events <-chan changefeed.Event) {
	kick := make(chan struct{}, 1)
	go func() {
		defer close(kick)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				select {
				case kick <- struct{}{}:
				default: // a refresh is already pending
				}
			}
		}
	}()

	for range kick {
		count, err := l.store.Current(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("re-read counter failed", "error", err)
			continue
		}
		l.bc.Broadcast(ctx, count)
	}
}

// wait sleeps for the next backoff interval. Returns false when ctx was
// cancelled during the wait.
func (l *ChangeListener) wait(ctx context.Context) bool {
	delay := l.backoff.Next()
	slog.Debug("change feed backoff", "delay", delay)

	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
