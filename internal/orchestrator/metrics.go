package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/todorun/internal/task"
)

type runMetrics struct {
	tasks      metric.Int64Counter
	runs       metric.Int64Counter
	iterations metric.Int64Histogram
}

// newRunMetrics creates run instruments. Creation errors are logged; the
// meter still hands back a usable instrument alongside them.
func newRunMetrics(m metric.Meter, logger *zap.Logger) *runMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	rm := &runMetrics{}

	var err error
	rm.tasks, err = m.Int64Counter(
		"todorun.tasks.completed_total",
		metric.WithDescription("Task executions by resulting status"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		logger.Warn("failed to create task counter", zap.Error(err))
	}

	rm.runs, err = m.Int64Counter(
		"todorun.runs.completed_total",
		metric.WithDescription("Execution loop runs by exit reason"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		logger.Warn("failed to create run counter", zap.Error(err))
	}

	rm.iterations, err = m.Int64Histogram(
		"todorun.runs.iterations",
		metric.WithDescription("Iterations used per run"),
		metric.WithUnit("{iteration}"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100),
	)
	if err != nil {
		logger.Warn("failed to create iterations histogram", zap.Error(err))
	}
	return rm
}

func (rm *runMetrics) recordTask(ctx context.Context, st task.Status) {
	if rm == nil || rm.tasks == nil {
		return
	}
	rm.tasks.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(st))))
}

func (rm *runMetrics) recordRun(ctx context.Context, r RunResult) {
	if rm == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("exit_reason", string(r.ExitReason)))
	if rm.runs != nil {
		rm.runs.Add(ctx, 1, attrs)
	}
	if rm.iterations != nil {
		rm.iterations.Record(ctx, int64(r.Iterations), attrs)
	}
}
