// Package metrics exposes the Prometheus metrics of the lookup engine.
// Metrics are declared with promauto in the package that owns them
// (cache, batch, client, ratelimit, pagination, lookup) to avoid import cycles;
// this package serves them and lists their names.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all engine metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer Handler reads from.
var Gatherer = prometheus.DefaultGatherer

// Prefix is shared by every engine metric.
const Prefix = "partmatch_"

// Names lists every engine metric.
var Names = []string{
	// pkg/cache
	"partmatch_cache_records",
	"partmatch_enqueue_total",
	"partmatch_cache_reads_total",

	// pkg/batch
	"partmatch_flushes_total",
	"partmatch_empty_flushes_total",
	"partmatch_batch_size",
	"partmatch_flush_duration_seconds",
	"partmatch_missing_api_key_total",

	// pkg/client
	"partmatch_requests_total",
	"partmatch_request_duration_seconds",
	"partmatch_errors_total",
	"partmatch_retries_total",
	"partmatch_retry_exhausted_total",
	"partmatch_proxy_credentials_total",
	"partmatch_records_written_total",

	// pkg/ratelimit
	"partmatch_rate_limit_remaining",
	"partmatch_rate_limit_retry_after_seconds",
	"partmatch_rate_limit_blocks_total",

	// pkg/pagination
	"partmatch_pagination_decisions_total",

	// pkg/lookup
	"partmatch_lookup_waits_total",
	"partmatch_lookup_wait_duration_seconds",
}

// Handler serves Gatherer in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Collected returns the names of engine metrics that currently have at least
// one series.
func Collected() ([]string, error) {
	families, err := Gatherer.Gather()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), Prefix) {
			names = append(names, f.GetName())
		}
	}
	return names, nil
}

// Example queries:
//
//	# share of lookups answered from a batch rather than individually
//	sum(rate(partmatch_records_written_total[5m])) / sum(rate(partmatch_flushes_total[5m]))
//
//	# attempts delayed by the advertised rate limit
//	rate(partmatch_rate_limit_blocks_total[5m])
//
//	# p95 request latency
//	histogram_quantile(0.95, rate(partmatch_request_duration_seconds_bucket[5m]))
//
//	# records currently waiting for a flush
//	partmatch_cache_records{state="awaiting"}
