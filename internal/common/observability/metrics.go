package observability

import (
	"context"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"geomet-mapfile/internal/common/logger"
)

// Observability records mapfile runs through the OpenTelemetry metric SDK,
// exported in Prometheus format.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	runCounter    otelmetric.Int64Counter
	runDuration   otelmetric.Float64Histogram
	layerCounter  otelmetric.Int64Counter
}

// New registers the exporter with the default Prometheus registry.
func New(serviceName string, log logger.Logger) *Observability {
	return NewWithRegisterer(serviceName, promclient.DefaultRegisterer, log)
}

func NewWithRegisterer(serviceName string, reg promclient.Registerer, log logger.Logger) *Observability {
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		log.Warn("Failed to create Prometheus exporter", map[string]interface{}{
			"error": err.Error(),
		})
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	runCounter, _ := meter.Int64Counter(
		"mapfile_runs",
		otelmetric.WithDescription("Number of generation and update runs"),
	)

	runDuration, _ := meter.Float64Histogram(
		"mapfile_run_duration",
		otelmetric.WithDescription("Run duration"),
		otelmetric.WithUnit("ms"),
	)

	layerCounter, _ := meter.Int64Counter(
		"mapfile_run_layers",
		otelmetric.WithDescription("Layers handled per run, by result"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		runCounter:    runCounter,
		runDuration:   runDuration,
		layerCounter:  layerCounter,
	}
}

// RecordRun counts one run of operation ("generate" or "update").
func (o *Observability) RecordRun(ctx context.Context, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	if o.runCounter != nil {
		o.runCounter.Add(ctx, 1, attrs)
	}
	if o.runDuration != nil {
		o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

// RecordLayers adds the generated and failed layer counts of one run.
func (o *Observability) RecordLayers(ctx context.Context, generated, failed int) {
	if o.layerCounter == nil {
		return
	}
	o.layerCounter.Add(ctx, int64(generated), otelmetric.WithAttributes(attribute.String("result", "generated")))
	o.layerCounter.Add(ctx, int64(failed), otelmetric.WithAttributes(attribute.String("result", "failed")))
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.meterProvider.Shutdown(ctx)
	}
}
