package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the counters emitted by the consistency core. Instruments are registered against
// the global meter provider; without an installed SDK they are no-ops.
type Metrics struct {
	toggles         metric.Int64Counter
	transitions     metric.Int64Counter
	conflictRetries metric.Int64Counter
	driftTargets    metric.Int64Counter
}

var (
	metricsOnce sync.Once
	shared      *Metrics
)

// DefaultMetrics returns the process wide instrument set.
func DefaultMetrics() *Metrics {
	metricsOnce.Do(func() {
		shared = NewMetrics(otel.Meter("github.com/campushub/api"))
	})
	return shared
}

// NewMetrics registers the instruments on meter. Registration failures fall back to no-op
// instruments so callers never need nil checks.
func NewMetrics(meter metric.Meter) *Metrics {
	m := &Metrics{}
	m.toggles = counter(meter, "reactions.toggles", "Reaction toggles committed, by action.")
	m.transitions = counter(meter, "orders.transitions", "Order status transitions committed, by target status.")
	m.conflictRetries = counter(meter, "store.conflict_retries", "Guard-and-write attempts retried after a concurrent modification.")
	m.driftTargets = counter(meter, "reconcile.drift_targets", "Targets whose cached reaction counters disagreed with their rows.")
	return m
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

// ReactionToggled counts a committed toggle.
func (m *Metrics) ReactionToggled(ctx context.Context, action, kind string) {
	if m == nil {
		return
	}
	m.toggles.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action), attribute.String("target_kind", kind)))
}

// OrderTransitioned counts a committed status change.
func (m *Metrics) OrderTransitioned(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("from", from), attribute.String("to", to)))
}

// ConflictRetried counts one retry of an optimistic write.
func (m *Metrics) ConflictRetried(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.conflictRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// DriftDetected counts targets found with drifted counters.
func (m *Metrics) DriftDetected(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.driftTargets.Add(ctx, int64(n))
}
