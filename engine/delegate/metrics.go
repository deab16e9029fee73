package delegate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope of the delegate's spans.
const tracerName = "oxy-bridge"

// metrics holds the collectors of one delegate, labelled with its instance id.
type metrics struct {
	adaptersCreated *prometheus.CounterVec
	adaptersRemoved *prometheus.CounterVec
	deltaItems      prometheus.Histogram
	deltaRemovals   prometheus.Histogram
	syncDuration    prometheus.Histogram
	stepFailures    *prometheus.CounterVec
	tracer          trace.Tracer
}

func newMetrics(reg prometheus.Registerer, instance string) *metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"delegate": instance}
	return &metrics{
		adaptersCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "oxybridge_adapters_created_total",
			Help:        "Adapters created, by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		adaptersRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "oxybridge_adapters_removed_total",
			Help:        "Adapters removed, by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		deltaItems: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "oxybridge_delta_items",
			Help:        "Changed render items per delta batch.",
			Buckets:     prometheus.ExponentialBuckets(1, 4, 8),
			ConstLabels: labels,
		}),
		deltaRemovals: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "oxybridge_delta_removals",
			Help:        "Removed render items per delta batch.",
			Buckets:     prometheus.ExponentialBuckets(1, 4, 8),
			ConstLabels: labels,
		}),
		syncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "oxybridge_sync_duration_seconds",
			Help:        "Duration of the per-frame sync pass.",
			Buckets:     prometheus.ExponentialBuckets(0.0001, 2, 14),
			ConstLabels: labels,
		}),
		stepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "oxybridge_sync_step_failures_total",
			Help:        "Sync steps or entities abandoned after a failure, by step.",
			ConstLabels: labels,
		}, []string{"step"}),
		tracer: otel.Tracer(tracerName),
	}
}
