// Package telemetry wires OpenTelemetry into the data layer. Off by
// default; when enabled every node action is traced and counted (see
// InstrumentedActions) and the providers export wherever the standard
// OTel env vars point.
//
// # Configuration
//
//	UDL_OTEL_ENABLED=true             enable telemetry (default: off)
//	UDL_OTEL_STDOUT=true              pretty-print spans/metrics (dev mode)
//	OTEL_EXPORTER_OTLP_ENDPOINT=...   OTLP gRPC endpoint (e.g. localhost:4317)
//	OTEL_EXPORTER_OTLP_METRICS_ENDPOINT=...  metrics-only endpoint override
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/udl-dev/udl"

// Options identifies the data layer instance being instrumented.
type Options struct {
	ServiceName string
	Version     string

	// Plugins are the configured source plugin names; recorded as a
	// resource attribute so traces can be sliced by project shape.
	Plugins []string
}

// settings is the env-derived exporter selection, read once per Init.
type settings struct {
	enabled         bool
	stdout          bool
	endpoint        string
	metricsEndpoint string
}

func readSettings() settings {
	return settings{
		enabled:         os.Getenv("UDL_OTEL_ENABLED") == "true",
		stdout:          os.Getenv("UDL_OTEL_STDOUT") == "true",
		endpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		metricsEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
	}
}

// Enabled reports whether telemetry is active (UDL_OTEL_ENABLED=true).
func Enabled() bool {
	return readSettings().enabled
}

var shutdownFns []func(context.Context) error

// Init configures the global OTel providers. When UDL_OTEL_ENABLED is
// not "true" it installs no-op providers and returns immediately, so
// the disabled path carries zero overhead.
func Init(ctx context.Context, opts Options) error {
	cfg := readSettings()
	if !cfg.enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(opts.ServiceName),
		semconv.ServiceVersionKey.String(opts.Version),
	}
	if len(opts.Plugins) > 0 {
		attrs = append(attrs, attribute.StringSlice("udl.plugins", opts.Plugins))
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	tp, err := cfg.traceProvider(ctx, res)
	if err != nil {
		return fmt.Errorf("telemetry: trace provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	shutdownFns = append(shutdownFns, tp.Shutdown)

	mp, err := cfg.metricProvider(ctx, res)
	if err != nil {
		return fmt.Errorf("telemetry: metric provider: %w", err)
	}
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)

	return nil
}

func (c settings) traceProvider(ctx context.Context, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	if c.endpoint != "" {
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(c.endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	// stdout when asked for, and as the fallback when telemetry is
	// enabled without any endpoint.
	if c.stdout || c.endpoint == "" {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	return sdktrace.NewTracerProvider(opts...), nil
}

func (c settings) metricProvider(ctx context.Context, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	// Node actions complete in well under a millisecond on the in-memory
	// store; the SDK's default histogram buckets would flatten every
	// udl.node.operation.duration sample into the first bin.
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "udl.node.operation.duration"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{0.05, 0.1, 0.5, 1, 5, 10, 50, 100, 500},
			}},
		)),
	}

	if c.stdout {
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second)),
		))
	}

	ep := c.metricsEndpoint
	if ep == "" {
		ep = c.endpoint
	}
	if ep != "" {
		exp, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(ep),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second)),
		))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

// Tracer returns a tracer with the given instrumentation name (or the global scope).
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter with the given instrumentation name (or the global scope).
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes pending spans and metrics and stops the providers.
// Deferred at process exit with a short-lived context.
func Shutdown(ctx context.Context) {
	for _, fn := range shutdownFns {
		_ = fn(ctx)
	}
	shutdownFns = nil
}
