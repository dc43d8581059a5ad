package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterName is the instrumentation scope for attempt instruments.
const MeterName = "github.com/hooksmith/hooksmith"

// Instrument names for the per-attempt observation triple. Exactly one
// observation on each of the three is emitted per dispatch, on every path.
const (
	ExternalRequestCount    = "webhook.external_request.count"
	ExternalRequestDuration = "webhook.external_request.duration"
	ExternalRequestBodySize = "webhook.external_request.body_size"
)

// AttemptRecorder records the observation triple for one send attempt. It
// is an injected capability so tests can run against an isolated reader
// instead of process-global state.
type AttemptRecorder struct {
	count    metric.Int64Counter
	duration metric.Float64Histogram
	bodySize metric.Int64Histogram
}

func NewAttemptRecorder(meter metric.Meter) (*AttemptRecorder, error) {
	count, err := meter.Int64Counter(ExternalRequestCount,
		metric.WithDescription("Number of webhook send attempts."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(ExternalRequestDuration,
		metric.WithUnit("s"),
		metric.WithDescription("Wall-clock duration of the outbound call."))
	if err != nil {
		return nil, err
	}
	bodySize, err := meter.Int64Histogram(ExternalRequestBodySize,
		metric.WithUnit("By"),
		metric.WithDescription("Size of the serialized payload sent, regardless of outcome."))
	if err != nil {
		return nil, err
	}
	return &AttemptRecorder{count: count, duration: duration, bodySize: bodySize}, nil
}

// RecordAttempt emits the count/duration/body-size triple with a shared
// attribute set. Fire-and-forget: never blocks on exporter availability.
func (r *AttemptRecorder) RecordAttempt(ctx context.Context, attrs []attribute.KeyValue, seconds float64, bodySize int) {
	opt := metric.WithAttributes(attrs...)
	r.count.Add(ctx, 1, opt)
	r.duration.Record(ctx, seconds, opt)
	r.bodySize.Record(ctx, int64(bodySize), opt)
}

// NewMeterProvider bridges the OTel meter into a Prometheus registry so the
// attempt instruments are served from the worker's /metrics endpoint
// alongside the ops counters.
func NewMeterProvider(reg *prometheus.Registry) (*sdkmetric.MeterProvider, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)), nil
}
