package methodcache

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/goliatone/go-method-cache/methodcache"

// Outcomes recorded for every cached call. Refresh only feeds the metric;
// Stats has no refresh counter.
const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultBypass  = "bypass"
	resultError   = "error"
	resultRefresh = "refresh"
)

type metrics struct {
	requests metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	requests, err := meter.Int64Counter(
		"methodcache.requests",
		metric.WithDescription("Cached method calls by cache and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}
	return &metrics{requests: requests}, nil
}

func (m *metrics) record(ctx context.Context, cacheName, result string) {
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.name", cacheName),
		attribute.String("cache.result", result),
	))
}
