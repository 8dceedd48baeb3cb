// Package tracing provides OpenTelemetry instrumentation for outgoing API
// requests and resource fetches. It is entirely optional: tracing is only
// active when a [Config] is wired in via the WithOpenTelemetry client option.
package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Keksclan/rawrFetch/contextx"
)

const instrumentationName = "github.com/Keksclan/rawrFetch/tracing"

// Config holds the OpenTelemetry configuration used by the transport and
// resource instrumentation.
type Config struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider

	// Propagators injects trace context into outgoing request headers.
	// When nil the global otel.GetTextMapPropagator() is used.
	Propagators propagation.TextMapPropagator
}

// tracer returns a configured [trace.Tracer]. A nil config yields a no-op
// tracer so callers never need to branch.
func (c *Config) tracer() trace.Tracer {
	if c == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	tp := c.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// propagators returns the configured propagator (or global default).
func (c *Config) propagators() propagation.TextMapPropagator {
	if c != nil && c.Propagators != nil {
		return c.Propagators
	}
	return otel.GetTextMapPropagator()
}

// StartFetch starts an internal span around one resource producer call.
func StartFetch(ctx context.Context, cfg *Config, cacheKey string, refetch bool) (context.Context, trace.Span) {
	ctx, span := cfg.tracer().Start(ctx, "resource.fetch", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("rawrfetch.cache_key", cacheKey),
		attribute.Bool("rawrfetch.refetch", refetch),
	)
	return ctx, span
}

// EndFetch records the producer outcome on span and ends it. A discarded
// result is one that arrived after a newer request superseded it.
func EndFetch(span trace.Span, err error, discarded bool) {
	span.SetAttributes(attribute.Bool("rawrfetch.discarded", discarded))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Transport returns an http.RoundTripper that creates a client span for every
// request and injects the trace context into its headers. If cfg is nil the
// returned transport is next itself.
func Transport(cfg *Config, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if cfg == nil {
		return next
	}
	return &transport{cfg: cfg, next: next}
}

type transport struct {
	cfg  *Config
	next http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Name spans after the policy group when one was resolved; raw paths may
	// embed IDs.
	route := req.URL.Path
	if g := contextx.PathGroupFromContext(req.Context()); g != "" {
		route = g
	}
	ctx, span := t.cfg.tracer().Start(req.Context(), req.Method+" "+route,
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.URL.Path),
		attribute.String("server.address", req.URL.Host),
		attribute.String("rawrfetch.path_group", route),
	)

	req = req.Clone(ctx)
	t.cfg.propagators().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := t.next.RoundTrip(req)
	recordStatus(span, resp, err)
	return resp, err
}

// recordStatus sets the span status from the response. Client spans treat
// 4xx and 5xx as errors.
func recordStatus(span trace.Span, resp *http.Response, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return
	}
	span.SetStatus(codes.Ok, "")
}
