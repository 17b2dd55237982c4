// Package telemetry sets up OpenTelemetry tracing for crawl tasks.
package telemetry

import (
	"context"
	"fmt"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
)

const tracerName = "github.com/JakeFAU/gramcrawl"

// Config controls the tracer provider. Spans are exported to Google Cloud
// Trace when ProjectID is set and kept in process otherwise.
type Config struct {
	ServiceName string
	Version     string
	ProjectID   string
}

// InitTracerProvider installs the global tracer provider and propagator.
// Callers must Shutdown the returned provider to flush pending spans.
func InitTracerProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "gramcrawl"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if cfg.ProjectID != "" {
		exporter, err := texporter.New(texporter.WithProjectID(cfg.ProjectID))
		if err != nil {
			return nil, fmt.Errorf("create cloud trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp, nil
}

// StartTask opens a span covering one attempt of task. Without an installed
// provider the span is a no-op.
func StartTask(ctx context.Context, runID string, task crawler.Task) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task "+string(task.Label),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("task.url", task.URL),
			attribute.String("task.label", string(task.Label)),
			attribute.Int("task.attempt", task.Attempt),
		),
	)
}

// EndTask records the outcome on span and ends it.
func EndTask(span trace.Span, outcome crawler.Outcome) {
	span.SetAttributes(attribute.String("task.outcome", outcome.Kind.String()))
	if outcome.Reason != "" {
		span.SetAttributes(attribute.String("task.reason", string(outcome.Reason)))
	}
	if outcome.Record != nil {
		span.SetAttributes(attribute.String("record.type", string(outcome.Record.Type)))
	}
	switch outcome.Kind {
	case crawler.OutcomeOK:
		span.SetStatus(codes.Ok, "")
	default:
		if outcome.Err != nil {
			span.RecordError(outcome.Err)
		}
		span.SetStatus(codes.Error, outcome.String())
	}
	span.End()
}
