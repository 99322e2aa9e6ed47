package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infrasight_samples_total",
			Help: "Samples appended to a stream buffer by source",
		},
		[]string{"source"},
	)

	FetchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infrasight_fetch_failures_total",
			Help: "Poll ticks skipped because the fetch failed, by source and error kind",
		},
		[]string{"source", "kind"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "infrasight_fetch_duration_seconds",
			Help:    "Duration of prediction fetches",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"source"},
	)

	BufferLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "infrasight_buffer_length",
			Help: "Current number of samples held per buffer",
		},
		[]string{"buffer"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infrasight_notifications_total",
			Help: "Notifications emitted by kind and source",
		},
		[]string{"kind", "source"},
	)

	FaultInjectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "infrasight_fault_injections_total",
			Help: "Synthetic fault injections performed",
		},
	)

	BackendAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infrasight_backend_alerts_total",
			Help: "Alert rows logged by the prediction service, by source and severity",
		},
		[]string{"source", "severity"},
	)

	AlertFeedSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "infrasight_alert_feed_size",
			Help: "Alert records in the latest feed snapshot",
		},
	)
)

// RecordSample counts an appended sample and updates the buffer gauge.
func RecordSample(source, buffer string, length int) {
	SamplesTotal.WithLabelValues(source).Inc()
	BufferLength.WithLabelValues(buffer).Set(float64(length))
}

// RecordFetchFailure counts a skipped poll tick.
func RecordFetchFailure(source, kind string) {
	FetchFailuresTotal.WithLabelValues(source, kind).Inc()
}

func RecordNotification(kind, source string) {
	NotificationsTotal.WithLabelValues(kind, source).Inc()
}
