package ironlicensing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ironlicensing/ironlicensing-go"

// Metrics holds the SDK's OpenTelemetry instruments. Optional: the client
// records nothing until an embedder installs a bundle via SetMetrics.
type Metrics struct {
	OperationAttempts metric.Int64Counter
	OperationFailures metric.Int64Counter
	OperationDuration metric.Float64Histogram
	CacheHits         metric.Int64Counter
	CacheMisses       metric.Int64Counter
}

// NewMetrics creates the SDK metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.OperationAttempts, err = meter.Int64Counter(
		"licensing_operation_attempts_total",
		metric.WithDescription("Total number of licensing operations attempted"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation attempts counter: %w", err)
	}

	m.OperationFailures, err = meter.Int64Counter(
		"licensing_operation_failures_total",
		metric.WithDescription("Total number of licensing operations that did not succeed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation failures counter: %w", err)
	}

	m.OperationDuration, err = meter.Float64Histogram(
		"licensing_operation_duration_seconds",
		metric.WithDescription("Licensing operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation duration histogram: %w", err)
	}

	m.CacheHits, err = meter.Int64Counter(
		"licensing_cache_hits_total",
		metric.WithDescription("Validations served from the offline cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	m.CacheMisses, err = meter.Int64Counter(
		"licensing_cache_misses_total",
		metric.WithDescription("Validations that went to the network"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}

	return m, nil
}

// startSpan opens a span for one licensing operation. Uses the globally
// registered tracer provider, which is a no-op unless the embedder set one.
func startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "licensing."+operation,
		trace.WithAttributes(attribute.String("licensing.operation", operation)))
}

// recordOperation finishes the span and updates the metric bundle, if any.
func (m *Metrics) recordOperation(ctx context.Context, span trace.Span, operation string, start time.Time, success, cached bool) {
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Bool("licensing.success", success),
		attribute.Bool("licensing.cached", cached),
		attribute.Float64("licensing.duration_ms", float64(duration.Milliseconds())),
	)
	if success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, "licensing operation unsuccessful")
	}
	span.End()

	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	m.OperationAttempts.Add(ctx, 1, attrs)
	if !success {
		m.OperationFailures.Add(ctx, 1, attrs)
	}
	m.OperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// recordCacheLookup updates the cache counters, if a bundle is installed.
func (m *Metrics) recordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Add(ctx, 1)
	} else {
		m.CacheMisses.Add(ctx, 1)
	}
}
