package toolset

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/todorun/internal/toolset"

// Metrics holds capability invocation instruments. A nil *Metrics records nothing.
type Metrics struct {
	invocations    metric.Int64Counter
	failures       metric.Int64Counter
	duration       metric.Float64Histogram
	activeRequests metric.Int64UpDownCounter
}

// NewMetrics creates instruments on meter. Instruments that fail to
// register are logged and skipped.
func NewMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{}

	var err error
	m.invocations, err = meter.Int64Counter(
		"todorun.tool.invocations_total",
		metric.WithDescription("Total number of capability invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		logger.Warn("failed to create invocations counter", zap.Error(err))
	}

	m.failures, err = meter.Int64Counter(
		"todorun.tool.failures_total",
		metric.WithDescription("Capability invocations that returned an unsuccessful result"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		logger.Warn("failed to create failures counter", zap.Error(err))
	}

	m.duration, err = meter.Float64Histogram(
		"todorun.tool.duration_seconds",
		metric.WithDescription("Duration of capability invocations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.activeRequests, err = meter.Int64UpDownCounter(
		"todorun.tool.active_requests",
		metric.WithDescription("Capability invocations in flight"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create active requests gauge", zap.Error(err))
	}
	return m
}

// RecordInvocation records one completed invocation.
func (m *Metrics) RecordInvocation(ctx context.Context, name string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", name))
	if m.invocations != nil {
		m.invocations.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if !success && m.failures != nil {
		m.failures.Add(ctx, 1, attrs)
	}
}

// IncrementActive marks an invocation as started.
func (m *Metrics) IncrementActive(ctx context.Context, name string) {
	if m == nil || m.activeRequests == nil {
		return
	}
	m.activeRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", name)))
}

// DecrementActive marks an invocation as finished.
func (m *Metrics) DecrementActive(ctx context.Context, name string) {
	if m == nil || m.activeRequests == nil {
		return
	}
	m.activeRequests.Add(ctx, -1, metric.WithAttributes(attribute.String("tool", name)))
}
