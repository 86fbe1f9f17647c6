// Package tracing wraps OpenTelemetry so callers start and finish spans without
// importing the SDK directly. When tracing is disabled the global no-op provider
// stays in place and every helper is safe to call.
package tracing

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/okian/seatalloc"

// Provider owns the installed tracer provider and the file it writes to, if any.
type Provider struct {
	tp     *sdktrace.TracerProvider
	closer io.Closer
}

// Init installs a stdout exporter. An empty outputFile writes to os.Stdout.
func Init(serviceName, serviceVersion, outputFile string) (*Provider, error) {
	var (
		w      io.Writer = os.Stdout
		closer io.Closer
	)
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return nil, err
		}
		w, closer = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	p, err := InitWithExporter(serviceName, serviceVersion, exporter)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	p.closer = closer
	return p, nil
}

// InitWithExporter installs the supplied exporter as the global provider.
// Spans are exported synchronously as they end.
func InitWithExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) (*Provider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}, nil
}

// Shutdown flushes pending spans and releases the output file.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	err := p.tp.Shutdown(ctx)
	if p.closer != nil {
		if cerr := p.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Span wraps an OpenTelemetry span.
type Span struct {
	span trace.Span
}

// StartSpan starts an internal span as a child of whatever span ctx carries.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
	return ctx, &Span{span: span}
}

// StartServerSpan starts a span for an inbound request.
func StartServerSpan(ctx context.Context, name string) (context.Context, *Span) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
	return ctx, &Span{span: span}
}

// WithAttributes attaches string attributes to the span.
func (s *Span) WithAttributes(attrs map[string]string) *Span {
	if s == nil || len(attrs) == 0 {
		return s
	}
	kv := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kv = append(kv, attribute.String(k, v))
	}
	s.span.SetAttributes(kv...)
	return s
}

// SetInt attaches an integer attribute to the span.
func (s *Span) SetInt(key string, v int) *Span {
	if s == nil {
		return s
	}
	s.span.SetAttributes(attribute.Int(key, v))
	return s
}

// AddEvent records a named point in time on the span.
func (s *Span) AddEvent(name string) {
	if s == nil {
		return
	}
	s.span.AddEvent(name)
}

// SetStatusFromHTTPCode sets the span status from a response code.
func (s *Span) SetStatusFromHTTPCode(code int) {
	if s == nil {
		return
	}
	s.span.SetAttributes(attribute.Int("http.status_code", code))
	switch {
	case code >= 100 && code < 400:
		s.span.SetStatus(codes.Ok, "")
	case code >= 400 && code < 500:
		s.span.SetStatus(codes.Error, "client error")
	case code >= 500:
		s.span.SetStatus(codes.Error, "server error")
	}
}

// EndSpan records err (or OK) on the span and ends it.
func EndSpan(sp *Span, err error) {
	if sp == nil {
		return
	}
	if err != nil {
		sp.span.RecordError(err)
		sp.span.SetStatus(codes.Error, err.Error())
	} else {
		sp.span.SetStatus(codes.Ok, "")
	}
	sp.span.End()
}

// TraceID returns the hex trace id carried by ctx, or "" when there is none.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
