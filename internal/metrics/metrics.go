package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hooksmith_deliveries_total",
			Help: "Total number of delivery attempts by final status.",
		},
		[]string{"status"}, // delivered, failed, dead
	)

	DeliveryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hooksmith_delivery_latency_seconds",
			Help:    "End-to-end latency of delivery attempts.",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hooksmith_retries_total",
			Help: "Total number of delivery retries by reason.",
		},
		[]string{"reason"}, // e.g. http_5xx, timeout, network, other
	)

	DLQTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hooksmith_dlq_total",
			Help: "Total number of deliveries moved to the dead letter queue.",
		},
		[]string{"reason"},
	)

	WorkerBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hooksmith_worker_backlog",
			Help: "Current depth of the deliveries channel as seen by the worker.",
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(DeliveriesTotal, DeliveryLatency, RetriesTotal, DLQTotal, WorkerBacklog)
}

// RecordDelivery counts one finished attempt and observes its latency.
func RecordDelivery(status string, latency time.Duration) {
	DeliveriesTotal.WithLabelValues(status).Inc()
	DeliveryLatency.Observe(latency.Seconds())
}

// RecordRetry counts one requeued delivery by failure reason.
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordDLQ counts one dead-lettered delivery.
func RecordDLQ(reason string) {
	DLQTotal.WithLabelValues(reason).Inc()
}

// UpdateWorkerBacklog sets the current queue depth gauge.
func UpdateWorkerBacklog(depth float64) {
	WorkerBacklog.Set(depth)
}
