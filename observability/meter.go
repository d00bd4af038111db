package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/fixturekit/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider and installs it
// globally. The returned provider should be shut down on exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.WithComponent("observability").Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Instruments holds the metric instruments of the resilience layer.
type Instruments struct {
	requests     metric.Int64Counter
	cacheLookups metric.Int64Counter
	timeouts     metric.Int64Counter
	passthrough  metric.Int64Counter
	errors       metric.Int64Counter
	swept        metric.Int64Counter
	latency      metric.Float64Histogram
}

// NewInstruments creates the instruments on the given meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	requests, err := meter.Int64Counter("fixturekit.requests",
		metric.WithDescription("Requests handled, by source"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fixturekit.requests counter: %w", err)
	}

	cacheLookups, err := meter.Int64Counter("fixturekit.cache.lookups",
		metric.WithDescription("Response cache lookups, by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fixturekit.cache.lookups counter: %w", err)
	}

	timeouts, err := meter.Int64Counter("fixturekit.timeouts",
		metric.WithDescription("Fixture calls that ran out of budget"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fixturekit.timeouts counter: %w", err)
	}

	passthrough, err := meter.Int64Counter("fixturekit.passthrough",
		metric.WithDescription("Requests served by the passthrough"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fixturekit.passthrough counter: %w", err)
	}

	errorsTotal, err := meter.Int64Counter("fixturekit.errors",
		metric.WithDescription("Requests that failed, by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fixturekit.errors counter: %w", err)
	}

	swept, err := meter.Int64Counter("fixturekit.cache.swept",
		metric.WithDescription("Expired cache entries removed by cleanup"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fixturekit.cache.swept counter: %w", err)
	}

	latency, err := meter.Float64Histogram("fixturekit.request.duration",
		metric.WithDescription("Request latency, by source"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fixturekit.request.duration histogram: %w", err)
	}

	return &Instruments{
		requests:     requests,
		cacheLookups: cacheLookups,
		timeouts:     timeouts,
		passthrough:  passthrough,
		errors:       errorsTotal,
		swept:        swept,
		latency:      latency,
	}, nil
}

// NopInstruments returns instruments that record nothing.
func NopInstruments() *Instruments {
	ins, _ := NewInstruments(noop.NewMeterProvider().Meter(InstrumentationName))
	return ins
}

// RecordCacheLookup records a cache hit or miss.
func (i *Instruments) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	i.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrCacheResult, result)))
}

// RecordOutcome records a request that produced a result.
func (i *Instruments) RecordOutcome(ctx context.Context, source string, timedOut bool, latency time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(AttrSource, source),
		attribute.Bool(AttrTimedOut, timedOut),
	)
	i.requests.Add(ctx, 1, attrs)
	i.latency.Record(ctx, float64(latency.Microseconds())/1000, metric.WithAttributes(
		attribute.String(AttrSource, source),
	))
	if source == "passthrough" {
		i.passthrough.Add(ctx, 1)
	}
}

// RecordTimeouts adds n budget exhaustions.
func (i *Instruments) RecordTimeouts(ctx context.Context, n int64) {
	if n > 0 {
		i.timeouts.Add(ctx, n)
	}
}

// RecordError records a failed request by kind.
func (i *Instruments) RecordError(ctx context.Context, kind string) {
	i.errors.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrErrorKind, kind)))
}

// RecordSweep records entries removed by a cleanup pass.
func (i *Instruments) RecordSweep(ctx context.Context, removed int) {
	if removed > 0 {
		i.swept.Add(ctx, int64(removed))
	}
}
