package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "counterd"

// Metrics holds all counterd metric instruments.
type Metrics struct {
	Broadcasts       metric.Int64Counter
	Deliveries       metric.Int64Counter
	DeliveryFailures metric.Int64Counter
	FeedResubscribes metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Broadcasts, err = meter.Int64Counter("counterd.broadcasts",
		metric.WithDescription("Number of fan-out broadcasts"))
	if err != nil {
		return nil, err
	}

	m.Deliveries, err = meter.Int64Counter("counterd.deliveries",
		metric.WithDescription("Number of successful subscriber deliveries"))
	if err != nil {
		return nil, err
	}

	m.DeliveryFailures, err = meter.Int64Counter("counterd.delivery_failures",
		metric.WithDescription("Number of failed subscriber deliveries"))
	if err != nil {
		return nil, err
	}

	m.FeedResubscribes, err = meter.Int64Counter("counterd.feed_resubscribes",
		metric.WithDescription("Number of change feed resubscribe attempts"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RegisterSubscriberGauge exports the current subscriber count as an
// observable gauge. count is read on every metric collection.
func RegisterSubscriberGauge(count func() int) error {
	meter := otel.Meter(meterName)
	gauge, err := meter.Int64ObservableGauge("counterd.subscribers_active",
		metric.WithDescription("Number of currently registered push subscribers"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, int64(count()))
		return nil
	}, gauge)
	return err
}
