package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partmatch_flushes_total",
		Help: "Total flushes that sent a batch, by trigger",
	}, []string{"trigger"}) // "size", "timer", "manual"

	emptyFlushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "partmatch_empty_flushes_total",
		Help: "Total flushes that found nothing awaiting",
	})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "partmatch_batch_size",
		Help:    "Number of records sent per batch",
		Buckets: []float64{1, 2, 5, 10, 20, 50},
	})

	flushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "partmatch_flush_duration_seconds",
		Help:    "Time spent sending a batch, including retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	missingAPIKeyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "partmatch_missing_api_key_total",
		Help: "Records failed at enqueue because no API key is configured",
	})
)
