// Package client sends batches of part lookups to the parts match endpoint
// with fixed-delay retry, proxy credential escalation and rate limit
// awareness, and writes every outcome back to the record store.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/partmatch-client/pkg/cache"
	"github.com/Sternrassler/partmatch-client/pkg/partmatch"
	"github.com/Sternrassler/partmatch-client/pkg/ratelimit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the REST root of the parts API.
const DefaultBaseURL = "https://octopart.com/api/v4/rest"

// Sink receives the outcome of a batch. *cache.Manager implements it.
type Sink interface {
	Complete(key string, offset int, items []partmatch.Part, totalHits int, note string) bool
	Fail(key string, offset int, msg string) bool
	FailBatch(tickets []cache.Ticket, msg string)
}

// Settings are the values that may change while the client is in use.
// A batch uses the settings current when it starts.
type Settings struct {
	APIKey  string
	Timeout time.Duration
}

// Client is the parts match transport.
type Client struct {
	httpClient  *http.Client
	transport   *http.Transport
	proxy       *proxySelector
	credentials CredentialProvider
	limiter     *rate.Limiter
	tracker     *ratelimit.Tracker
	settings    atomic.Pointer[Settings]
	endpoint    *url.URL
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the REST root; requests go to BaseURL + "/parts/match".
	BaseURL string

	// APIKey is forwarded with every batch.
	APIKey string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// UserAgent header sent with every request.
	UserAgent string

	// Retry policy
	Retry RetryConfig

	// ProxyURL overrides the HTTP_PROXY/HTTPS_PROXY environment.
	ProxyURL string

	// Credentials is asked for proxy credentials on repeated 407 responses.
	// Nil declines.
	Credentials CredentialProvider

	// RequestsPerSecond paces attempts locally. Zero disables pacing.
	RequestsPerSecond float64

	// RateLimit tracks the server advertised window. Nil disables tracking.
	RateLimit *ratelimit.Tracker

	// Logger defaults to the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		APIKey:    apiKey,
		Timeout:   5 * time.Second,
		UserAgent: "partmatch-client/1.0",
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new transport client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Delay < 0 {
		return nil, fmt.Errorf("retry delay must be >= 0 (got %s)", cfg.Retry.Delay)
	}

	proxy, err := newProxySelector(cfg.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str("component", "partmatch-client").Logger()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxy.Proxy

	credentials := cfg.Credentials
	if credentials == nil {
		credentials = DeclineCredentials{}
	}

	c := &Client{
		httpClient:  &http.Client{Transport: transport},
		transport:   transport,
		proxy:       proxy,
		credentials: credentials,
		tracker:     cfg.RateLimit,
		endpoint:    base.JoinPath("parts", "match"),
		config:      cfg,
		logger:      logger,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	c.settings.Store(&Settings{APIKey: cfg.APIKey, Timeout: cfg.Timeout})
	return c, nil
}

// Settings returns the current settings.
func (c *Client) Settings() Settings {
	return *c.settings.Load()
}

// SetAPIKey replaces the API key used by subsequent batches.
func (c *Client) SetAPIKey(key string) {
	s := c.Settings()
	s.APIKey = key
	c.settings.Store(&s)
}

// SetTimeout replaces the per-attempt timeout used by subsequent batches.
func (c *Client) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	s := c.Settings()
	s.Timeout = d
	c.settings.Store(&s)
}

// ExecuteBatch sends one request for the batch and writes every outcome to
// sink. All tickets end Completed or Failed. The returned error describes a
// batch-wide failure and has already been recorded on every ticket.
func (c *Client) ExecuteBatch(ctx context.Context, batch []cache.Ticket, sink Sink) error {
	if len(batch) == 0 {
		return ErrEmptyBatch
	}

	queries := make([]partmatch.Query, len(batch))
	for i, t := range batch {
		queries[i] = partmatch.Query{
			MPN:       t.Key,
			Start:     t.Offset,
			Limit:     t.Limit,
			Reference: t.Reference(),
		}
	}

	resp, err := c.match(ctx, c.Settings(), queries)
	if err == nil {
		err = validateResponse(resp, batch)
	}
	if err != nil {
		msg := RecordMessage(err)
		sink.FailBatch(batch, msg)
		recordsWrittenTotal.WithLabelValues("failed").Add(float64(len(batch)))
		c.logger.Error().
			Err(err).
			Int("batch_size", len(batch)).
			Str("message", msg).
			Msg("Batch failed")
		return err
	}

	c.demux(batch, resp, sink)
	return nil
}

// Match sends queries as one request using the current settings.
func (c *Client) Match(ctx context.Context, queries []partmatch.Query) (*partmatch.Response, error) {
	return c.match(ctx, c.Settings(), queries)
}

func (c *Client) match(ctx context.Context, s Settings, queries []partmatch.Query) (*partmatch.Response, error) {
	encoded, err := json.Marshal(queries)
	if err != nil {
		return nil, fmt.Errorf("encode queries: %w", err)
	}

	target := *c.endpoint
	q := target.Query()
	q.Set("apikey", s.APIKey)
	q.Set("queries", string(encoded))
	target.RawQuery = q.Encode()

	c.logger.Debug().
		Int("queries", len(queries)).
		Msg("Executing batch request")

	var out *partmatch.Response
	err = retryFixed(ctx, c.config.Retry, c.logger, func(ctx context.Context, attempt int) error {
		resp, err := c.attempt(ctx, s, &target, attempt)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// attempt performs a single request.
func (c *Client) attempt(ctx context.Context, s Settings, target *url.URL, attempt int) (*partmatch.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	if err := c.awaitWindow(ctx); err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		errorsTotal.WithLabelValues(string(ErrorClassTransportUnavailable)).Inc()
		requestsTotal.WithLabelValues("no_response").Inc()
		c.logger.Error().Err(err).Int("attempt", attempt+1).Msg("HTTP request failed")
		return nil, &APIError{
			Class:   ErrorClassTransportUnavailable,
			Message: msgNoResponse,
			Err:     err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	if c.tracker != nil {
		if err := c.tracker.UpdateFromResponse(ctx, resp.StatusCode, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if resp.StatusCode == http.StatusOK {
		var out partmatch.Response
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassSchema)).Inc()
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Class:      ErrorClassSchema,
				Message:    msgInadequate,
				Err:        fmt.Errorf("%w: %v", ErrSchema, err),
			}
		}
		return &out, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	apiErr := newStatusError(resp.StatusCode)
	errorsTotal.WithLabelValues(string(apiErr.Class)).Inc()
	if apiErr.Class == ErrorClassProxyAuthRequired {
		apiErr.Err = c.escalateProxy(ctx, target, attempt)
	}

	c.logger.Warn().
		Int("status", resp.StatusCode).
		Str("error_class", string(apiErr.Class)).
		Int("attempt", attempt+1).
		Msg("Batch request error")
	return nil, apiErr
}

// awaitWindow delays an attempt while the advertised rate limit window is
// closed, for at most the retry delay. The attempt is sent afterwards either way.
func (c *Client) awaitWindow(ctx context.Context) error {
	if c.tracker == nil {
		return nil
	}
	allowed, wait, err := c.tracker.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Rate limit check failed")
		return nil
	}
	if allowed {
		return nil
	}
	if wait > c.config.Retry.Delay {
		wait = c.config.Retry.Delay
	}
	if wait <= 0 {
		return nil
	}

	requestsTotal.WithLabelValues("delayed").Inc()
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// escalateProxy applies proxy credentials after a 407. The first attempt
// falls back to the default credentials of the proxy configuration; the
// third and fourth ask the CredentialProvider. Other attempts retry
// unchanged. A non-nil return aborts the batch.
func (c *Client) escalateProxy(ctx context.Context, target *url.URL, attempt int) error {
	switch attempt {
	case 0:
		if c.proxy.defaults.IsZero() {
			c.logger.Debug().Msg("Proxy requires authentication but no default credentials are configured")
			return nil
		}
		c.proxy.apply(c.proxy.defaults)
		proxyCredentialsTotal.WithLabelValues("default").Inc()
		c.logger.Info().Msg("Applied default proxy credentials")
	case 2, 3:
		creds, err := c.credentials.ProxyCredentials(ctx, c.proxy.proxyFor(target))
		if err != nil {
			proxyCredentialsTotal.WithLabelValues("declined").Inc()
			c.logger.Warn().Err(err).Msg("Proxy credentials not provided")
			if !errors.Is(err, ErrCredentialsDeclined) {
				err = fmt.Errorf("%w: %v", ErrCredentialsDeclined, err)
			}
			return err
		}
		c.proxy.apply(creds)
		proxyCredentialsTotal.WithLabelValues("provider").Inc()
		c.logger.Info().Str("username", creds.Username).Msg("Applied proxy credentials")
	default:
		return nil
	}
	c.transport.CloseIdleConnections()
	return nil
}

// validateResponse checks that resp answers batch entry for entry.
func validateResponse(resp *partmatch.Response, batch []cache.Ticket) error {
	if resp == nil {
		return schemaError("empty body")
	}
	if len(resp.Results) != len(batch) {
		return schemaError("%d results for %d queries", len(resp.Results), len(batch))
	}
	for i, r := range resp.Results {
		if r.Reference != "" && r.Reference != batch[i].Reference() {
			return schemaError("result %d references %q, want %q", i, r.Reference, batch[i].Reference())
		}
	}
	return nil
}

func schemaError(format string, args ...any) *APIError {
	errorsTotal.WithLabelValues(string(ErrorClassSchema)).Inc()
	return &APIError{
		StatusCode: http.StatusOK,
		Class:      ErrorClassSchema,
		Message:    msgInadequate,
		Err:        fmt.Errorf("%w: %s", ErrSchema, fmt.Sprintf(format, args...)),
	}
}

// demux writes each result to the record at the same batch position.
func (c *Client) demux(batch []cache.Ticket, resp *partmatch.Response, sink Sink) {
	completed, empty, failed := 0, 0, 0
	for i, t := range batch {
		r := resp.Results[i]
		switch {
		case r.Error != "":
			sink.Fail(t.Key, t.Offset, r.Error)
			failed++
			c.logger.Warn().
				Str("key", t.Key).
				Int("offset", t.Offset).
				Str("error", r.Error).
				Msg("Query failed")
		case r.Items == nil:
			sink.Fail(t.Key, t.Offset, msgInadequate)
			failed++
		case len(r.Items) == 0:
			sink.Complete(t.Key, t.Offset, r.Items, r.Hits, cache.NoResultsNote)
			empty++
		default:
			sink.Complete(t.Key, t.Offset, r.Items, r.Hits, "")
			completed++
		}
	}

	recordsWrittenTotal.WithLabelValues("completed").Add(float64(completed))
	recordsWrittenTotal.WithLabelValues("no_results").Add(float64(empty))
	recordsWrittenTotal.WithLabelValues("failed").Add(float64(failed))

	c.logger.Info().
		Int("batch_size", len(batch)).
		Int("completed", completed).
		Int("no_results", empty).
		Int("failed", failed).
		Msg("Batch written back")
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
