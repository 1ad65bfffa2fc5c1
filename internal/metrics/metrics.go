package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "ingest_"

var queueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: prefix + "queue_depth",
		Help: "Number of requests waiting in or being processed from the priority queue",
	},
)

var requestsSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "requests_submitted_total",
		Help: "Number of accepted ingestion requests",
	},
	[]string{"priority"},
)

var requestsRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "requests_rejected_total",
		Help: "Number of ingestion requests rejected before admission",
	},
	[]string{"reason"},
)

var batchesProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "batches_processed_total",
		Help: "Number of batches that reached the completed state",
	},
	[]string{"priority"},
)

var batchDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    prefix + "batch_duration_seconds",
		Help:    "Time spent fetching all ids of a batch",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
	},
)

var fetchFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: prefix + "fetch_failures_total",
		Help: "Number of ids whose external fetch failed after all attempts",
	},
)

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func RecordSubmitted(priority string) {
	requestsSubmitted.WithLabelValues(priority).Inc()
}

func RecordRejected(reason string) {
	requestsRejected.WithLabelValues(reason).Inc()
}

func RecordBatch(priority string, duration time.Duration) {
	batchesProcessed.WithLabelValues(priority).Inc()
	batchDuration.Observe(duration.Seconds())
}

func RecordFetchFailure() {
	fetchFailures.Inc()
}
