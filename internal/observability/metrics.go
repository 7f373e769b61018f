package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hobby_tracker",
		Subsystem: "persistence",
		Name:      "last_run_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent run persisted from the activity platform.",
	})

	webhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hobby_tracker",
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Push deliveries received, labeled by processing outcome.",
	}, []string{"outcome"})

	manualSyncs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hobby_tracker",
		Subsystem: "sync",
		Name:      "manual_syncs_total",
		Help:      "Manual sync requests, labeled by outcome.",
	}, []string{"outcome"})

	upstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hobby_tracker",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Latency of calls to the activity platform by operation.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 9),
	}, []string{"operation"})
)

func init() {
	prometheus.MustRegister(runPersistGauge, webhookDeliveries, manualSyncs, upstreamDuration)
}

// RecordRunPersisted updates the persistence watermark gauge.
func RecordRunPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	runPersistGauge.Set(float64(ts.Unix()))
}

// RecordWebhookOutcome counts one processed push delivery.
func RecordWebhookOutcome(outcome string) {
	webhookDeliveries.WithLabelValues(outcome).Inc()
}

// RecordManualSync counts one manual sync request.
func RecordManualSync(outcome string) {
	manualSyncs.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records the duration of an upstream call started at start.
func ObserveUpstream(operation string, start time.Time) {
	upstreamDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
