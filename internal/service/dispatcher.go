package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	otelx "github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/adapter/otel"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/domain/counter"
)

// Dispatcher fans a counter value out to every registered subscriber.
// Deliveries run concurrently and independently; a failure removes that
// subscriber only, and Broadcast returns once every attempt finished.
type Dispatcher struct {
	registry *Registry
	metrics  *otelx.Metrics // optional
}

// NewDispatcher creates a Dispatcher over the given registry.
// metrics may be nil.
func NewDispatcher(registry *Registry, metrics *otelx.Metrics) *Dispatcher {
	return &Dispatcher{registry: registry, metrics: metrics}
}

// Broadcast delivers count to every subscriber registered at call time.
// With zero subscribers it is a no-op.
func (d *Dispatcher) Broadcast(ctx context.Context, count int64) {
	entries := d.registry.Snapshot()
	if d.metrics != nil {
		d.metrics.Broadcasts.Add(ctx, 1)
	}
	if len(entries) == 0 {
		return
	}

	u := counter.Update{Count: count}

	var g errgroup.Group
	for _, e := range entries {
		g.Go(func() error {
			if err := e.Sub.Deliver(ctx, u); err != nil {
				slog.Debug("delivery failed, dropping subscriber",
					"handle", e.Handle, "error", err)
				d.registry.Deregister(e.Handle)
				e.Sub.Close()
				if d.metrics != nil {
					d.metrics.DeliveryFailures.Add(ctx, 1)
				}
				return nil
			}
			if d.metrics != nil {
				d.metrics.Deliveries.Add(ctx, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.Debug("broadcast complete", "count", count, "subscribers", len(entries))
}
