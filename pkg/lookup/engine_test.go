package lookup

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/partmatch-client/internal/testutil"
	"github.com/Sternrassler/partmatch-client/pkg/batch"
	"github.com/Sternrassler/partmatch-client/pkg/cache"
	"github.com/Sternrassler/partmatch-client/pkg/client"
	"github.com/Sternrassler/partmatch-client/pkg/pagination"
	"github.com/Sternrassler/partmatch-client/pkg/partmatch"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, mock *testutil.MockPartsAPI, mutate func(*Config)) *Engine {
	t.Helper()

	logger := zerolog.Nop()
	cfg := DefaultConfig("test-key")
	cfg.BaseURL = mock.URL()
	cfg.Debounce = time.Hour
	cfg.Retry = client.RetryConfig{MaxAttempts: 5, Delay: time.Millisecond}
	cfg.Logger = &logger
	if mutate != nil {
		mutate(&cfg)
	}

	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("k")
	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, client.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 200*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 1, cfg.PageLimit)
	assert.Equal(t, 80, cfg.MaxOffset)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 400*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, "batch_size must be >= 1 (got 0)"},
		{"zero page limit", func(c *Config) { c.PageLimit = 0 }, "page_limit must be >= 1 (got 0)"},
		{"negative max offset", func(c *Config) { c.MaxOffset = -1 }, "max_offset must be >= 0 (got -1)"},
		{"no attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max_attempts must be >= 1 (got 0)"},
		{"zero timeout", func(c *Config) { c.HTTPTimeout = 0 }, "http_timeout must be > 0 (got 0s)"},
		{"zero debounce", func(c *Config) { c.Debounce = 0 }, "debounce must be > 0 (got 0s)"},
		{"empty api key is allowed", func(c *Config) { c.APIKey = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("k")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestEngine_ConcurrentLookupsShareOneRequest(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.AddPart("ABC123", testutil.NewPart("ABC123", "Acme"))

	e := newTestEngine(t, mock, func(c *Config) { c.Debounce = 20 * time.Millisecond })

	var wg sync.WaitGroup
	for _, key := range []string{"ABC123", "abc 123", " Abc123 "} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			e.LookupOrContinue(k)
		}(key)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return len(e.Results("ABC123")) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	requests := mock.Requests()
	require.Len(t, requests, 1)
	require.Len(t, requests[0].Queries, 1)
	assert.Equal(t, "abc123", requests[0].Queries[0].MPN)
	assert.Equal(t, "test-key", requests[0].APIKey)
	assert.True(t, e.IsExhausted("abc123"))
	assert.Empty(t, e.LastError("abc123"))
}

func TestEngine_ExhaustedAfterSingleHit(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.AddPart("LM317T", testutil.NewPart("LM317T", "Texas Instruments"))

	e := newTestEngine(t, mock, nil)

	assert.Equal(t, pagination.DecisionEnqueued, e.LookupOrContinue("LM317T"))
	assert.Equal(t, 1, e.Flush(context.Background()))

	assert.True(t, e.IsExhausted("LM317T"))
	assert.Equal(t, pagination.DecisionExhausted, e.LookupOrContinue("LM317T"))
	assert.Equal(t, 1, mock.RequestCount())
}

func TestEngine_WalksPages(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.AddPart("BC547",
		testutil.NewPart("BC547", "Fairchild"),
		testutil.NewPart("BC547", "NXP"),
		testutil.NewPart("BC547", "Diotec"),
	)

	e := newTestEngine(t, mock, nil)
	ctx := context.Background()

	for offset := 0; offset < 3; offset++ {
		assert.Equal(t, pagination.DecisionEnqueued, e.LookupOrContinue("BC547"), "offset %d", offset)
		assert.Equal(t, 1, e.Flush(ctx))
		assert.Len(t, e.Results("BC547"), offset+1)
	}

	assert.True(t, e.IsExhausted("BC547"))
	assert.Equal(t, pagination.DecisionExhausted, e.LookupOrContinue("BC547"))

	got := e.Results("BC547")
	assert.Equal(t, "Fairchild", got[0].Manufacturer.Name)
	assert.Equal(t, "NXP", got[1].Manufacturer.Name)
	assert.Equal(t, "Diotec", got[2].Manufacturer.Name)

	requests := mock.Requests()
	require.Len(t, requests, 3)
	for i, r := range requests {
		require.Len(t, r.Queries, 1)
		assert.Equal(t, i, r.Queries[0].Start)
		assert.Equal(t, 1, r.Queries[0].Limit)
	}
}

func TestEngine_QueryErrorThenReset(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.SetQueryError("XYZ", "not found")

	e := newTestEngine(t, mock, nil)

	e.LookupOrContinue("XYZ")
	e.Flush(context.Background())
	assert.Equal(t, "not found", e.LastError("XYZ"))
	assert.Empty(t, e.Results("XYZ"))

	mock.ClearQueryError("XYZ")
	mock.AddPart("XYZ", testutil.NewPart("XYZ", "Acme"))

	assert.Equal(t, pagination.DecisionRetrying, e.LookupOrContinue("XYZ"))
	assert.Empty(t, e.LastError("XYZ"), "a reset record is no longer failed")

	e.Flush(context.Background())
	assert.Len(t, e.Results("XYZ"), 1)
	assert.Empty(t, e.LastError("XYZ"))
}

func TestEngine_BadRequestIsNotRetried(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.QueueStatus(http.StatusBadRequest)

	e := newTestEngine(t, mock, nil)

	e.LookupOrContinue("ABC123")
	e.Flush(context.Background())

	assert.Equal(t, 1, mock.RequestCount())
	assert.Equal(t, "Bad Request. Please check the query parameters", e.LastError("ABC123"))
}

func TestEngine_RateLimitedKeepsMessage(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.QueueStatus(429, 429, 429, 429, 429)

	e := newTestEngine(t, mock, nil)

	e.LookupOrContinue("ABC123")
	e.Flush(context.Background())

	assert.Equal(t, 5, mock.RequestCount())
	assert.Equal(t, "Server is overloaded (429 Too Many Requests)", e.LastError("ABC123"))
}

func TestEngine_RetryAfterDoesNotShortenRetries(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.QueueStatus(429, 429, 429, 429, 429)
	mock.SetHeader("Retry-After", "30")
	mock.AddPart("DEF456", testutil.NewPart("DEF456", "Acme"))

	e := newTestEngine(t, mock, nil)

	e.LookupOrContinue("ABC123")
	e.Flush(context.Background())

	assert.Equal(t, 5, mock.RequestCount())
	assert.Equal(t, "Server is overloaded (429 Too Many Requests)", e.LastError("ABC123"))

	e.LookupOrContinue("DEF456")
	e.Flush(context.Background())

	assert.Equal(t, 6, mock.RequestCount())
	assert.Empty(t, e.LastError("DEF456"))
	assert.Len(t, e.Results("DEF456"), 1)
}

func TestEngine_MissingAPIKey(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()

	e := newTestEngine(t, mock, func(c *Config) { c.APIKey = "" })

	e.LookupOrContinue("ABC123")
	assert.Equal(t, cache.ErrMissingAPIKey.Error(), e.LastError("ABC123"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, mock.RequestCount())

	e.SetAPIKey("late-key")
	mock.AddPart("ABC123", testutil.NewPart("ABC123", "Acme"))
	assert.Equal(t, pagination.DecisionRetrying, e.LookupOrContinue("ABC123"))
	e.Flush(context.Background())

	assert.Len(t, e.Results("ABC123"), 1)
	requests := mock.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "late-key", requests[0].APIKey)
}

func TestEngine_NoResultsNote(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()

	e := newTestEngine(t, mock, nil)

	e.LookupOrContinue("NOPE")
	e.Flush(context.Background())

	recs := e.Records("NOPE")
	require.Len(t, recs, 1)
	assert.Equal(t, cache.StateCompleted, recs[0].State)
	assert.Equal(t, cache.NoResultsNote, recs[0].Note)
	assert.True(t, e.IsExhausted("NOPE"))
}

func TestEngine_Wait(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(m *testutil.MockPartsAPI)
		mutate    func(c *Config)
		match     Match
		want      Status
		wantCount int
		wantMsg   string
	}{
		{
			name: "first page matches",
			setup: func(m *testutil.MockPartsAPI) {
				m.AddPart("LM317T", testutil.NewPart("LM317T", "Texas Instruments"), testutil.NewPart("LM317T", "ST"))
			},
			match:     ManufacturerMatch("texas instruments"),
			want:      StatusMatched,
			wantCount: 1,
		},
		{
			name: "walks to the matching page",
			setup: func(m *testutil.MockPartsAPI) {
				m.AddPart("LM317T",
					testutil.NewPart("LM317T", "ST"),
					testutil.NewPart("LM317T", "onsemi"),
					testutil.NewPart("LM317T", "Texas Instruments"),
				)
			},
			match:     ManufacturerMatch("Texas Instruments"),
			want:      StatusMatched,
			wantCount: 3,
		},
		{
			name: "exhausted without match",
			setup: func(m *testutil.MockPartsAPI) {
				m.AddPart("LM317T", testutil.NewPart("LM317T", "ST"), testutil.NewPart("LM317T", "onsemi"))
			},
			match:     ManufacturerMatch("Texas Instruments"),
			want:      StatusExhausted,
			wantCount: 2,
		},
		{
			name: "ceiling without match",
			setup: func(m *testutil.MockPartsAPI) {
				parts := make([]partmatch.Part, 5)
				for i := range parts {
					parts[i] = testutil.NewPart("LM317T", "ST")
				}
				m.AddPart("LM317T", parts...)
			},
			mutate:    func(c *Config) { c.MaxOffset = 2 },
			match:     ManufacturerMatch("Texas Instruments"),
			want:      StatusCeiling,
			wantCount: 3,
		},
		{
			name:    "failure is retried once",
			setup:   func(m *testutil.MockPartsAPI) { m.SetQueryError("LM317T", "not found") },
			match:   AnyResult,
			want:    StatusFailed,
			wantMsg: "not found",
		},
		{
			name:  "nil match accepts any result",
			setup: func(m *testutil.MockPartsAPI) { m.AddPart("LM317T", testutil.NewPart("LM317T", "ST")) },
			want:  StatusMatched, wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockPartsAPI()
			defer mock.Close()
			tt.setup(mock)

			e := newTestEngine(t, mock, func(c *Config) {
				c.Debounce = 5 * time.Millisecond
				if tt.mutate != nil {
					tt.mutate(c)
				}
			})

			out, err := e.Wait(waitCtx(t), "LM317T", tt.match)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Status)
			assert.Len(t, out.Results, tt.wantCount)
			assert.Equal(t, tt.wantMsg, out.Message)
		})
	}
}

func TestEngine_WaitRetriesEarlierFailure(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.QueueStatus(http.StatusForbidden)
	mock.AddPart("ABC123", testutil.NewPart("ABC123", "Acme"))

	e := newTestEngine(t, mock, func(c *Config) { c.Debounce = 5 * time.Millisecond })

	e.LookupOrContinue("ABC123")
	e.Flush(context.Background())
	require.NotEmpty(t, e.LastError("ABC123"))

	out, err := e.Wait(waitCtx(t), "ABC123", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, out.Status)
	assert.Equal(t, 2, mock.RequestCount())
}

func TestEngine_WaitContextCancelled(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.AddPart("ABC123", testutil.NewPart("ABC123", "Acme"))

	e := newTestEngine(t, mock, func(c *Config) { c.Debounce = time.Hour })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := e.Wait(ctx, "ABC123", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, mock.RequestCount())
}

func TestEngine_LookupAfterClose(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.AddPart("ABC123", testutil.NewPart("ABC123", "Acme"))

	e := newTestEngine(t, mock, nil)
	e.LookupOrContinue("DEF456")
	require.NoError(t, e.Close())

	assert.Equal(t, batch.ErrClosed.Error(), e.LastError("DEF456"))

	out, err := e.Wait(waitCtx(t), "ABC123", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, batch.ErrClosed.Error(), out.Message)
	assert.Equal(t, 0, mock.RequestCount())
}

func TestEngine_SetHTTPTimeout(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.AddPart("ABC123", testutil.NewPart("ABC123", "Acme"))
	mock.SetDelay(100 * time.Millisecond)

	e := newTestEngine(t, mock, func(c *Config) {
		c.Retry = client.RetryConfig{MaxAttempts: 1, Delay: time.Millisecond}
	})
	e.SetHTTPTimeout(20 * time.Millisecond)

	e.LookupOrContinue("ABC123")
	e.Flush(context.Background())

	assert.NotEmpty(t, e.LastError("ABC123"))
	assert.Empty(t, e.Results("ABC123"))
}

func TestMatchers(t *testing.T) {
	ti := testutil.NewPart("LM317T", "Texas Instruments")
	ti.Offers = []partmatch.Offer{{Seller: &partmatch.Seller{Name: "Digi-Key"}}}
	st := testutil.NewPart("LM317T", "STMicroelectronics")

	tests := []struct {
		name  string
		match Match
		parts []partmatch.Part
		want  bool
	}{
		{"any on empty", AnyResult, nil, false},
		{"any on one", AnyResult, []partmatch.Part{st}, true},
		{"manufacturer normalized", ManufacturerMatch("texas instruments"), []partmatch.Part{st, ti}, true},
		{"manufacturer missing", ManufacturerMatch("Microchip"), []partmatch.Part{st, ti}, false},
		{"empty manufacturer on empty", ManufacturerMatch(""), nil, false},
		{"distributor punctuation differs", DistributorMatch("Texas", "digikey"), []partmatch.Part{ti}, false},
		{"distributor normalized", DistributorMatch("Texas", "digi-key"), []partmatch.Part{ti}, true},
		{"distributor wrong manufacturer", DistributorMatch("ST", "Digi-Key"), []partmatch.Part{st}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.match(tt.parts))
		})
	}
}
