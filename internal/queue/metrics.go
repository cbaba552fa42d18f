package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/croply/fieldreport/internal/domain"
)

const namespace = "fieldreport"

var (
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of report queue items by status",
		},
		[]string{"status"},
	)

	itemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items_processed_total",
			Help:      "Total processing attempts by trigger type and outcome",
		},
		[]string{"trigger_type", "outcome"},
	)

	itemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "item_duration_seconds",
			Help:      "Time to process one queue item end to end",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"trigger_type"},
	)

	itemsClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items_claimed_total",
			Help:      "Total items claimed from the queue. Sum of items_processed_total should match this.",
		},
	)
)

// recordItemOutcome records one processing attempt outcome.
func recordItemOutcome(trigger domain.TriggerType, outcome string) {
	itemsProcessed.WithLabelValues(string(trigger), outcome).Inc()
}

// recordItemDuration records end-to-end item processing time.
func recordItemDuration(trigger domain.TriggerType, duration time.Duration) {
	itemDuration.WithLabelValues(string(trigger)).Observe(duration.Seconds())
}

// recordItemsClaimed records the number of items claimed in one batch.
func recordItemsClaimed(count int) {
	itemsClaimed.Add(float64(count))
}

// RecordQueueStats updates queue depth metrics.
func RecordQueueStats(stats *domain.QueueStats) {
	queueDepth.WithLabelValues("pending").Set(float64(stats.Pending))
	queueDepth.WithLabelValues("processing").Set(float64(stats.Processing))
	queueDepth.WithLabelValues("completed").Set(float64(stats.Completed))
	queueDepth.WithLabelValues("error").Set(float64(stats.Error))
	queueDepth.WithLabelValues("cancelled").Set(float64(stats.Cancelled))
}
