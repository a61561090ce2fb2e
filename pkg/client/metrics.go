package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partmatch_requests_total",
		Help: "Total batch requests by response status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "partmatch_request_duration_seconds",
		Help:    "Batch request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partmatch_errors_total",
		Help: "Total failed attempts by error class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partmatch_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partmatch_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})

	proxyCredentialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partmatch_proxy_credentials_total",
		Help: "Proxy credential escalations by source",
	}, []string{"source"}) // "default", "provider", "declined"

	recordsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partmatch_records_written_total",
		Help: "Records written back after a batch by outcome",
	}, []string{"outcome"}) // "completed", "no_results", "failed"
)
