// Package metrics wires up the OTEL meter provider with a Prometheus or
// OTLP reader and serves the Prometheus scrape endpoint.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

// Provider selects the metrics reader.
type Provider string

const (
	PrometheusProvider Provider = "PROMETHEUS_PROVIDER"
	OTLPProvider       Provider = "OTLP_PROVIDER"
)

// Config holds meter provider configuration.
type Config struct {
	ServiceName string
	Provider    Provider
	Endpoint    string // OTLP only
	Insecure    bool   // OTLP only
}

// MetricProvider is the lifecycle handle returned to main.
type MetricProvider interface {
	Shutdown(ctx context.Context) error
}

// NewMeterProvider initializes the global meter provider.
func NewMeterProvider(cfg Config) (MetricProvider, error) {
	ctx := context.Background()

	var reader sdkmetric.Reader

	switch cfg.Provider {
	case OTLPProvider:
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpointURL(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exp)

	default:
		exp, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("prometheus exporter: %w", err)
		}
		reader = exp
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = os.Getenv("OTEL_SERVICE_NAME")
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(
			resource.NewSchemaless(semconv.ServiceNameKey.String(serviceName)),
		),
	)

	otel.SetMeterProvider(meterProvider)

	return meterProvider, nil
}

// ServePrometheus serves the /metrics scrape endpoint on port. Blocks.
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
