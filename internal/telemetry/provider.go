// ABOUTME: Builds the OpenTelemetry tracer and meter providers for the process
// ABOUTME: Metrics stay in-process behind a manual reader and are summarised for the health resource

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const instrumentationName = "github.com/2389/knowledge-bridge"

// Config controls provider setup.
type Config struct {
	ServiceName string
	// OTLPEndpoint enables OTLP/HTTP trace export, e.g. http://localhost:4318.
	OTLPEndpoint string
	// Exporter replaces the OTLP exporter; used by tests.
	Exporter sdktrace.SpanExporter
	// SetGlobal installs the providers as the otel globals.
	SetGlobal bool
}

// Provider owns the SDK providers and the observer built on them.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	reader         *sdkmetric.ManualReader
	observer       *Observer
}

// Setup creates tracer and meter providers. Without an endpoint or exporter
// spans are still created but never exported.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "knowledge-bridge"
	}
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	exporter := cfg.Exporter
	if exporter == nil && cfg.OTLPEndpoint != "" {
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
		if err != nil {
			return nil, fmt.Errorf("creating otlp exporter: %w", err)
		}
		exporter = exp
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exporter != nil {
		if cfg.Exporter != nil {
			tpOpts = append(tpOpts, sdktrace.WithSyncer(exporter))
		} else {
			tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
		}
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))

	observer, err := NewObserver(mp.Meter(instrumentationName), tp.Tracer(instrumentationName))
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, fmt.Errorf("creating observer: %w", err)
	}

	if cfg.SetGlobal {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
	}

	return &Provider{
		tracerProvider: tp,
		meterProvider:  mp,
		reader:         reader,
		observer:       observer,
	}, nil
}

// Observer returns the observer bound to this provider.
func (p *Provider) Observer() *Observer {
	if p == nil {
		return nil
	}
	return p.observer
}

// Snapshot collects current metric values keyed by instrument name.
// Counters report their total; histograms report name.count and name.sum.
func (p *Provider) Snapshot(ctx context.Context) (map[string]float64, error) {
	if p == nil {
		return map[string]float64{}, nil
	}
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collecting metrics: %w", err)
	}

	out := make(map[string]float64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				out[m.Name] = float64(total)
			case metricdata.Histogram[float64]:
				var count uint64
				var sum float64
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				out[m.Name+".count"] = float64(count)
				out[m.Name+".sum"] = sum
			}
		}
	}
	return out, nil
}

// MetricNames returns the sorted keys of a snapshot.
func MetricNames(snapshot map[string]float64) []string {
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return errors.Join(
		p.tracerProvider.Shutdown(ctx),
		p.meterProvider.Shutdown(ctx),
	)
}
