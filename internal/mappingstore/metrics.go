package mappingstore

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("crossbridge.mappingstore")
	meter  = otel.Meter("crossbridge.mappingstore")
)

var (
	recordsSaved metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		recordsSaved, metricsErr = meter.Int64Counter(
			"mappingstore_records_saved_total",
			metric.WithDescription("Mapping records written"),
		)
	})
	return metricsErr
}

func recordSaves(ctx context.Context, n int) {
	if err := initMetrics(); err != nil {
		return
	}
	recordsSaved.Add(ctx, int64(n))
}

func startSpan(ctx context.Context, name, runID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("mappingstore.run_id", runID)))
}
