// Package metrics installs the OpenTelemetry meter provider for the
// keeper binaries and serves the prometheus scrape endpoint. The
// packages that emit counters register them against the global meter;
// this package only wires exporters.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Exporter names a metrics backend.
type Exporter string

const (
	PrometheusExporter Exporter = "prometheus"
	OTLPExporter       Exporter = "otlp_grpc"
)

// ExporterConfig configures one metrics backend. Endpoint and Headers
// only apply to the push exporters; the URL scheme decides TLS.
type ExporterConfig struct {
	Exporter Exporter
	Endpoint string
	Headers  map[string]string
}

// Options configures NewMetricProvider.
type Options struct {
	ServiceName string
	Exporters   []ExporterConfig
}

// MetricProvider owns the installed meter pipeline.
type MetricProvider interface {
	Meter(name string, options ...metric.MeterOption) metric.Meter
	Shutdown(ctx context.Context) error
}

// NewMetricProvider installs the global meter provider with one reader
// per configured exporter. No exporters means metrics are recorded but
// never leave the process.
func NewMetricProvider(opts Options) (MetricProvider, error) {
	var sdkOpts []sdkmetric.Option

	for _, cfg := range opts.Exporters {
		reader, err := newReader(cfg)
		if err != nil {
			return nil, fmt.Errorf("metrics: %s exporter: %w", cfg.Exporter, err)
		}
		sdkOpts = append(sdkOpts, sdkmetric.WithReader(reader))
	}

	sdkOpts = append(sdkOpts, sdkmetric.WithResource(
		resource.NewSchemaless(attribute.String("service.name", opts.ServiceName)),
	))

	provider := sdkmetric.NewMeterProvider(sdkOpts...)
	otel.SetMeterProvider(provider)

	return provider, nil
}

func newReader(cfg ExporterConfig) (sdkmetric.Reader, error) {
	switch cfg.Exporter {
	case PrometheusExporter:
		return prometheus.New()
	case OTLPExporter:
		exp, err := otlpmetricgrpc.New(
			context.Background(),
			otlpmetricgrpc.WithEndpointURL(cfg.Endpoint),
			otlpmetricgrpc.WithHeaders(cfg.Headers),
		)
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	default:
		return nil, fmt.Errorf("unknown exporter %q", cfg.Exporter)
	}
}

// ServePrometheus exposes /metrics on the given port and blocks until
// the listener fails. Meant to run on its own goroutine.
func ServePrometheus(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server.ListenAndServe()
}
