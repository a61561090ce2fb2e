package lookup

import (
	"context"
	"time"

	"github.com/Sternrassler/partmatch-client/pkg/pagination"
	"github.com/Sternrassler/partmatch-client/pkg/partmatch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	waitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partmatch_lookup_waits_total",
		Help: "Completed Wait calls by outcome",
	}, []string{"status"})

	waitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "partmatch_lookup_wait_duration_seconds",
		Help:    "Time spent in Wait until an outcome",
		Buckets: prometheus.DefBuckets,
	})
)

// Match reports whether the results fetched so far satisfy the caller.
type Match func(parts []partmatch.Part) bool

// AnyResult is satisfied by the first fetched part.
func AnyResult(parts []partmatch.Part) bool {
	return len(parts) > 0
}

// ManufacturerMatch is satisfied by a part whose manufacturer or brand
// contains manufacturer. An empty manufacturer behaves like AnyResult.
func ManufacturerMatch(manufacturer string) Match {
	return func(parts []partmatch.Part) bool {
		for _, p := range parts {
			if p.MatchesManufacturer(manufacturer) {
				return true
			}
		}
		return false
	}
}

// DistributorMatch is satisfied by a part of manufacturer offered by distributor.
func DistributorMatch(manufacturer, distributor string) Match {
	return func(parts []partmatch.Part) bool {
		for _, p := range parts {
			if p.MatchesManufacturer(manufacturer) && len(p.OffersFrom(distributor)) > 0 {
				return true
			}
		}
		return false
	}
}

// Status is the reason Wait returned.
type Status int

const (
	// StatusMatched means the results satisfy the match.
	StatusMatched Status = iota

	// StatusFailed means a page failed again after being retried once.
	StatusFailed

	// StatusExhausted means every hit was fetched without a match.
	StatusExhausted

	// StatusCeiling means the offset ceiling was reached without a match.
	StatusCeiling
)

func (s Status) String() string {
	switch s {
	case StatusMatched:
		return "matched"
	case StatusFailed:
		return "failed"
	case StatusExhausted:
		return "exhausted"
	case StatusCeiling:
		return "ceiling"
	default:
		return "unknown"
	}
}

// Outcome is the result of Wait.
type Outcome struct {
	Status  Status
	Results []partmatch.Part

	// Message is the last failure message of the key when Status is StatusFailed.
	Message string
}

// Wait drives the lookup of key page by page until match is satisfied, a
// page fails, the results are exhausted, or the offset ceiling is reached.
// Pages that had failed before the call are retried once. A nil match
// behaves like AnyResult. Wait returns ctx.Err() when ctx ends first;
// records in flight keep running.
func (e *Engine) Wait(ctx context.Context, key string, match Match) (Outcome, error) {
	if match == nil {
		match = AnyResult
	}
	start := time.Now()
	retried := false

	for {
		changed := e.cache.Changed(key)
		s := e.cache.Summary(key)
		results := e.cache.Get(key)

		if s.Exists && match(results) {
			return e.finish(start, Outcome{Status: StatusMatched, Results: results}), nil
		}

		switch {
		case len(s.Failed) > 0 && !retried:
			retried = true
			e.pager.Continue(key)
		case len(s.Failed) > 0:
			return e.finish(start, Outcome{
				Status:  StatusFailed,
				Results: results,
				Message: e.cache.LastError(key),
			}), nil
		case s.Pending:
		case s.Exhausted:
			return e.finish(start, Outcome{Status: StatusExhausted, Results: results}), nil
		default:
			if e.pager.Continue(key) == pagination.DecisionCeiling {
				return e.finish(start, Outcome{Status: StatusCeiling, Results: results}), nil
			}
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
}

func (e *Engine) finish(start time.Time, out Outcome) Outcome {
	waitsTotal.WithLabelValues(out.Status.String()).Inc()
	waitDuration.Observe(time.Since(start).Seconds())
	return out
}
