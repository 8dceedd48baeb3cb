package resource

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Keksclan/rawrFetch/tracing"
)

func TestWithTracing_SpanPerProducerCall(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := New[string](WithTracing(&tracing.Config{TracerProvider: tp}))

	r.Run(t.Context(), value("ok"), RunOptions[string]{CacheKey: "a", Enabled: true})
	wait(t, r)
	failing := func(context.Context) (string, error) { return "", errors.New("down") }
	r.Run(t.Context(), failing, RunOptions[string]{CacheKey: "b", Enabled: true})
	wait(t, r)

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	for _, s := range spans {
		if s.Name() != "resource.fetch" {
			t.Fatalf("unexpected span name %q", s.Name())
		}
	}
}

func TestWithTracing_RecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := New[string](WithTracing(&tracing.Config{TracerProvider: tp}))
	failing := func(context.Context) (string, error) { return "", errors.New("down") }
	r.Run(t.Context(), failing, RunOptions[string]{CacheKey: "b", Enabled: true})
	wait(t, r)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", spans[0].Status())
	}
}
