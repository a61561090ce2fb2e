package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Records tracks the number of lookup records by state
	Records = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "partmatch_cache_records",
			Help: "Current number of lookup records by state",
		},
		[]string{"state"}, // "awaiting", "in_flight", "failed", "completed"
	)

	// EnqueueTotal tracks enqueue calls by outcome
	EnqueueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partmatch_enqueue_total",
			Help: "Total number of enqueue calls by outcome",
		},
		[]string{"outcome"}, // "created", "reset", "exists"
	)

	// CacheReads tracks result reads that found completed items
	CacheReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partmatch_cache_reads_total",
			Help: "Total number of result reads by whether completed items were found",
		},
		[]string{"result"}, // "hit", "miss"
	)
)
