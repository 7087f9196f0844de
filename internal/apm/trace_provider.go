// Package apm bootstraps OpenTelemetry tracing for the keeper
// binaries. The exporter is chosen from configuration; business code
// only ever sees the global otel tracer.
package apm

import (
	"context"
	"fmt"
	"time"

	"github.com/dexkeep/keeperbot/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Provider names an exporter backend.
type Provider string

const (
	OTLPGRPCProvider Provider = "otlp_grpc"
	OTLPHTTPProvider Provider = "otlp_http"
	ZipkinProvider   Provider = "zipkin"
	ConsoleProvider  Provider = "console"
	NoneProvider     Provider = "none"
)

const shutdownTimeout = 5 * time.Second

// Options selects and configures the span exporter.
type Options struct {
	Provider    Provider
	ServiceName string
	// Endpoint is the collector URL for the otlp and zipkin providers.
	Endpoint string
	// Headers are sent with every export, e.g. a collector API key.
	Headers map[string]string
}

// TraceProvider owns the installed tracer pipeline.
type TraceProvider interface {
	Stop() error
}

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

type noopProvider struct{}

func (noopProvider) Stop() error {
	return nil
}

// NewTraceProvider installs the global tracer pipeline and returns a
// handle to flush it on shutdown. An exporter that cannot be built is
// an error; callers decide whether to run untraced.
func NewTraceProvider(log logger.LoggerInterface, opts Options) (TraceProvider, error) {
	exporter, err := newExporter(opts)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		log.Warn(context.Background(), "tracing exporter disabled", "provider", string(opts.Provider))
		return noopProvider{}, nil
	}

	rsrc, _ := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", opts.ServiceName),
			attribute.String("otel.provider", string(opts.Provider)),
		))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(rsrc),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	return &traceProvider{tp}, nil
}

func newExporter(opts Options) (sdktrace.SpanExporter, error) {
	switch opts.Provider {
	case OTLPGRPCProvider:
		return otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithEndpointURL(opts.Endpoint),
			otlptracegrpc.WithHeaders(opts.Headers),
		)
	case OTLPHTTPProvider:
		return otlptracehttp.New(
			context.Background(),
			otlptracehttp.WithEndpointURL(opts.Endpoint),
			otlptracehttp.WithHeaders(opts.Headers),
		)
	case ZipkinProvider:
		return zipkin.New(opts.Endpoint)
	case ConsoleProvider:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case NoneProvider, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("apm: unknown trace provider %q", opts.Provider)
	}
}

func (o *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return o.tp.Shutdown(ctx)
}
