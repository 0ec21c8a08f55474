package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/veloswap/market/internal/config"
)

const serviceNamespace = "marketplace"

var (
	ErrMissingServiceName    = errors.New("telemetry: service name is required")
	ErrMissingServiceVersion = errors.New("telemetry: service version is required")
	ErrInvalidSampleRate     = errors.New("telemetry: sample rate must be between 0 and 1")
)

// Option overrides the exporters Setup would build from the endpoint.
type Option func(*exporters)

type exporters struct {
	spans   sdktrace.SpanExporter
	metrics sdkmetric.Exporter
}

func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(e *exporters) { e.spans = exp }
}

func WithMetricExporter(exp sdkmetric.Exporter) Option {
	return func(e *exporters) { e.metrics = exp }
}

// Telemetry owns the providers installed by Setup.
type Telemetry struct {
	exporters
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// Setup installs the global tracer and meter providers for the service along
// with the W3C propagators. Callers must Shutdown the returned Telemetry.
func Setup(ctx context.Context, service config.ServiceConfig, cfg config.TelemetryConfig, opts ...Option) (*Telemetry, error) {
	if err := validate(service, cfg); err != nil {
		return nil, err
	}

	tel := &Telemetry{}
	for _, opt := range opts {
		opt(&tel.exporters)
	}

	res, err := serviceResource(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	if cfg.EnableTracing {
		if tel.spans == nil {
			if tel.spans, err = spanExporter(ctx, cfg.OTelEndpoint); err != nil {
				return nil, err
			}
		}
		tel.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler(cfg.SampleRate)),
			sdktrace.WithBatcher(tel.spans),
		)
		otel.SetTracerProvider(tel.tracerProvider)
	}

	if cfg.EnableMetrics {
		if tel.metrics == nil {
			if tel.metrics, err = metricExporter(ctx, cfg.OTelEndpoint); err != nil {
				_ = tel.Shutdown(ctx)
				return nil, err
			}
		}
		tel.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(tel.metrics)),
		)
		otel.SetMeterProvider(tel.meterProvider)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tel, nil
}

func validate(service config.ServiceConfig, cfg config.TelemetryConfig) error {
	switch {
	case service.Name == "":
		return ErrMissingServiceName
	case service.Version == "":
		return ErrMissingServiceVersion
	case cfg.SampleRate < 0 || cfg.SampleRate > 1:
		return fmt.Errorf("%w: got %v", ErrInvalidSampleRate, cfg.SampleRate)
	}
	return nil
}

func serviceResource(ctx context.Context, service config.ServiceConfig) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(service.Name),
			semconv.ServiceVersion(service.Version),
			semconv.ServiceNamespace(serviceNamespace),
			semconv.DeploymentEnvironment(service.Environment),
		),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
	)
}

// Rates in (0,1) follow the parent's decision so a trace is kept or dropped whole.
func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Shutdown flushes and stops both providers. The providers stop their
// exporters.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (t *Telemetry) TracerProvider() *sdktrace.TracerProvider { return t.tracerProvider }

func (t *Telemetry) MeterProvider() *sdkmetric.MeterProvider { return t.meterProvider }
