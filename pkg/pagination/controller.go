package pagination

import (
	"fmt"

	"github.com/Sternrassler/partmatch-client/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "partmatch_pagination_decisions_total",
	Help: "Pagination decisions by outcome",
}, []string{"decision"})

// Decision is the step Continue took for a key.
type Decision int

const (
	// DecisionEnqueued means a new page was enqueued.
	DecisionEnqueued Decision = iota

	// DecisionRetrying means failed pages were reset to awaiting.
	DecisionRetrying

	// DecisionPending means a page is awaiting or in flight; nothing was done.
	DecisionPending

	// DecisionExhausted means all hits have been fetched.
	DecisionExhausted

	// DecisionCeiling means the next page lies beyond the offset ceiling.
	DecisionCeiling
)

// String returns the decision name used in logs and metric labels.
func (d Decision) String() string {
	switch d {
	case DecisionEnqueued:
		return "enqueued"
	case DecisionRetrying:
		return "retrying"
	case DecisionPending:
		return "pending"
	case DecisionExhausted:
		return "exhausted"
	case DecisionCeiling:
		return "ceiling"
	default:
		return "unknown"
	}
}

// Final reports whether no further Continue call can fetch more results.
func (d Decision) Final() bool {
	return d == DecisionExhausted || d == DecisionCeiling
}

// Enqueuer registers a page for fetching. *batch.Scheduler implements it.
type Enqueuer interface {
	Enqueue(key string, offset int) cache.EnqueueOutcome
}

// Config holds pagination configuration.
type Config struct {
	// MaxOffset is the greatest offset ever enqueued for a key.
	MaxOffset int
}

// DefaultConfig returns the default pagination configuration.
func DefaultConfig() Config {
	return Config{MaxOffset: 80}
}

// Controller decides the next page of a key.
type Controller struct {
	cache    *cache.Manager
	enqueuer Enqueuer
	config   Config
	logger   zerolog.Logger
}

// New creates a controller reading state from c and enqueuing through enq.
func New(cfg Config, c *cache.Manager, enq Enqueuer, logger zerolog.Logger) (*Controller, error) {
	if cfg.MaxOffset < 0 {
		return nil, fmt.Errorf("max offset must be >= 0 (got %d)", cfg.MaxOffset)
	}
	if c == nil || enq == nil {
		return nil, fmt.Errorf("cache and enqueuer are required")
	}
	return &Controller{
		cache:    c,
		enqueuer: enq,
		config:   cfg,
		logger:   logger.With().Str("component", "pagination").Logger(),
	}, nil
}

// Continue takes one pagination step for key:
//
//  1. no record: enqueue offset 0
//  2. a failed record: re-enqueue every failed offset
//  3. a record awaiting or in flight: wait
//  4. exhausted: stop
//  5. greatest offset + limit within MaxOffset: enqueue it
//  6. otherwise: stop at the ceiling
func (c *Controller) Continue(key string) Decision {
	key = cache.NormalizeKey(key)
	d := c.decide(key)
	decisionsTotal.WithLabelValues(d.String()).Inc()
	return d
}

func (c *Controller) decide(key string) Decision {
	s := c.cache.Summary(key)

	switch {
	case !s.Exists:
		c.enqueuer.Enqueue(key, 0)
		c.logger.Debug().Str("key", key).Msg("First page enqueued")
		return DecisionEnqueued

	case len(s.Failed) > 0:
		for _, offset := range s.Failed {
			c.enqueuer.Enqueue(key, offset)
		}
		c.logger.Debug().
			Str("key", key).
			Ints("offsets", s.Failed).
			Msg("Failed pages reset for retry")
		return DecisionRetrying

	case s.Pending:
		return DecisionPending

	case s.Exhausted:
		return DecisionExhausted
	}

	next := s.MaxOffset + c.cache.Limit()
	if next > c.config.MaxOffset {
		c.logger.Debug().
			Str("key", key).
			Int("next_offset", next).
			Int("max_offset", c.config.MaxOffset).
			Msg("Pagination ceiling reached")
		return DecisionCeiling
	}

	c.enqueuer.Enqueue(key, next)
	c.logger.Debug().
		Str("key", key).
		Int("offset", next).
		Msg("Next page enqueued")
	return DecisionEnqueued
}
