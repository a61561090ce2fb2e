// Package lookup is the caller-facing facade of the batching engine.
//
// Callers ask for a part number and poll for results; the engine batches
// lookups from any number of goroutines into few requests, remembers every
// page it fetched, and walks further pages on demand:
//
//	engine, err := lookup.New(lookup.DefaultConfig(apiKey))
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
//
//	engine.LookupOrContinue("LM317T")
//	// ... later
//	parts := engine.Results("LM317T")
//	msg := engine.LastError("LM317T")
//
// Wait replaces polling loops when the caller can block:
//
//	out, err := engine.Wait(ctx, "LM317T", lookup.ManufacturerMatch("Texas Instruments"))
package lookup

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/partmatch-client/pkg/batch"
	"github.com/Sternrassler/partmatch-client/pkg/cache"
	"github.com/Sternrassler/partmatch-client/pkg/client"
	"github.com/Sternrassler/partmatch-client/pkg/pagination"
	"github.com/Sternrassler/partmatch-client/pkg/partmatch"
	"github.com/Sternrassler/partmatch-client/pkg/ratelimit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Engine wires the record cache, batch scheduler, transport and pagination
// controller together. It is safe for concurrent use.
type Engine struct {
	cache     *cache.Manager
	client    *client.Client
	scheduler *batch.Scheduler
	pager     *pagination.Controller
	logger    zerolog.Logger
}

// New creates an engine. Engines are independent of each other.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	records := cache.NewManager(cache.Config{PageLimit: cfg.PageLimit}, logger)

	transport, err := client.New(client.Config{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Timeout:           cfg.HTTPTimeout,
		UserAgent:         cfg.UserAgent,
		Retry:             cfg.Retry,
		ProxyURL:          cfg.ProxyURL,
		Credentials:       cfg.Credentials,
		RequestsPerSecond: cfg.RequestsPerSecond,
		RateLimit:         ratelimit.NewTracker(cfg.RateLimitStore, logger),
		Logger:            &logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	scheduler, err := batch.New(batch.Config{
		BatchSize: cfg.BatchSize,
		Debounce:  cfg.Debounce,
	}, records, transport, logger)
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	pager, err := pagination.New(pagination.Config{MaxOffset: cfg.MaxOffset}, records, scheduler, logger)
	if err != nil {
		scheduler.Close()
		transport.Close()
		return nil, fmt.Errorf("create pagination controller: %w", err)
	}

	return &Engine{
		cache:     records,
		client:    transport,
		scheduler: scheduler,
		pager:     pager,
		logger:    logger.With().Str("component", "lookup").Logger(),
	}, nil
}

// LookupOrContinue starts a lookup of key or advances it by one step: the
// first page, a retry of failed pages, or the next page. It never blocks on
// the network unless it fills a batch.
func (e *Engine) LookupOrContinue(key string) pagination.Decision {
	return e.pager.Continue(key)
}

// Results returns every part fetched for key so far, in page order.
func (e *Engine) Results(key string) []partmatch.Part {
	return e.cache.Get(key)
}

// LastError returns the message of the most recent failure for key, or "".
func (e *Engine) LastError(key string) string {
	return e.cache.LastError(key)
}

// IsExhausted reports whether every hit for key has been fetched.
func (e *Engine) IsExhausted(key string) bool {
	return e.cache.IsExhausted(key)
}

// Records returns snapshots of the pages of key, including notes such as
// cache.NoResultsNote.
func (e *Engine) Records(key string) []cache.Record {
	return e.cache.Records(key)
}

// Flush sends every awaiting lookup now and returns how many were sent.
func (e *Engine) Flush(ctx context.Context) int {
	return e.scheduler.Flush(ctx, batch.TriggerManual)
}

// SetAPIKey replaces the API key for subsequent batches.
func (e *Engine) SetAPIKey(key string) {
	e.client.SetAPIKey(key)
	e.logger.Info().Bool("set", key != "").Msg("API key updated")
}

// SetHTTPTimeout replaces the request timeout for subsequent batches.
func (e *Engine) SetHTTPTimeout(d time.Duration) {
	e.client.SetTimeout(d)
	e.logger.Info().Dur("timeout", d).Msg("HTTP timeout updated")
}

// Close stops the debounce timer and releases connections. Lookups still
// awaiting, and lookups started afterwards, fail with batch.ErrClosed.
func (e *Engine) Close() error {
	e.scheduler.Close()
	return e.client.Close()
}
