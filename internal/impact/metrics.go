package impact

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("crossbridge.impact")
	meter  = otel.Meter("crossbridge.impact")
)

var (
	factsRecorded   metric.Int64Counter
	collectDuration metric.Float64Histogram
	collectTotal    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		factsRecorded, err = meter.Int64Counter(
			"impact_facts_recorded_total",
			metric.WithDescription("Impact facts recorded, by source"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		collectDuration, err = meter.Float64Histogram(
			"impact_collect_duration_seconds",
			metric.WithDescription("Duration of parallel fact collection"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		collectTotal, err = meter.Int64Counter(
			"impact_collect_total",
			metric.WithDescription("Parallel fact collections"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordFactMetric(ctx context.Context, source Source) {
	if err := initMetrics(); err != nil {
		return
	}
	factsRecorded.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(source))))
}

func startCollectSpan(ctx context.Context, producers int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "impact.Collect",
		trace.WithAttributes(attribute.Int("impact.producers", producers)),
	)
}

func recordCollectMetrics(ctx context.Context, d time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	collectDuration.Record(ctx, d.Seconds(), attrs)
	collectTotal.Add(ctx, 1, attrs)
}
