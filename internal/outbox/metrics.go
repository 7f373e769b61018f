package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hobby_tracker",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Outbox events published to Kafka, by topic.",
	}, []string{"topic"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hobby_tracker",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Outbox events released for retry after a failed batch, by topic.",
	}, []string{"topic"})

	// batchDuration covers a non-empty batch from claim to settlement.
	// Empty polls are not observed.
	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hobby_tracker",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time from claiming an outbox batch to marking it published or released.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	writeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hobby_tracker",
		Subsystem: "outbox",
		Name:      "kafka_write_duration_seconds",
		Help:      "Latency of Kafka writes issued by the relay, by topic.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, writeDuration)
}

// countByTopic adds one to counter per message, labelled with its topic.
func countByTopic(counter *prometheus.CounterVec, messages []Message) {
	totals := make(map[string]int)
	for _, msg := range messages {
		totals[msg.Topic]++
	}
	for topic, n := range totals {
		counter.WithLabelValues(topic).Add(float64(n))
	}
}
