package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/JakeFAU/gramcrawl/internal/crawler"
)

// Tests here swap the global tracer provider, so none of them run in parallel.

func TestInitTracerProviderWithoutProject(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), Config{Version: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	require.Same(t, tp, otel.GetTracerProvider())
}

func TestTaskSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	task := crawler.NewTask("https://www.instagram.com/natgeo/", crawler.LabelProfile, nil)

	_, span := StartTask(context.Background(), "run-1", task)
	EndTask(span, crawler.Ok(crawler.Record{Type: crawler.RecordProfile}))

	_, span = StartTask(context.Background(), "run-1", task.Retried())
	EndTask(span, crawler.Retry(crawler.ReasonDriverError, errors.New("boom")))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "task PROFILE", spans[0].Name())
	require.Equal(t, codes.Ok, spans[0].Status().Code)
	require.Contains(t, spans[0].Attributes(), attribute.String("record.type", "profile"))

	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Contains(t, spans[1].Attributes(), attribute.Int("task.attempt", 1))
	require.Contains(t, spans[1].Attributes(), attribute.String("task.reason", "DRIVER_ERROR"))
	require.Len(t, spans[1].Events(), 1)
}
