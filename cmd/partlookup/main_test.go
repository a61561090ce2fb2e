package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/partmatch-client/internal/cliconfig"
	"github.com/Sternrassler/partmatch-client/internal/testutil"
	"github.com/Sternrassler/partmatch-client/pkg/client"
	"github.com/Sternrassler/partmatch-client/pkg/lookup"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func newTestEngine(t *testing.T, baseURL string) *lookup.Engine {
	t.Helper()
	return newTestEngineDebounce(t, baseURL, 5*time.Millisecond)
}

func newTestEngineDebounce(t *testing.T, baseURL string, debounce time.Duration) *lookup.Engine {
	t.Helper()
	logger := zerolog.Nop()
	cfg := lookup.DefaultConfig("test-key")
	cfg.BaseURL = baseURL
	cfg.Debounce = debounce
	cfg.Retry = client.RetryConfig{MaxAttempts: 2, Delay: time.Millisecond}
	cfg.Logger = &logger

	e, err := lookup.New(cfg)
	if err != nil {
		t.Fatalf("lookup.New() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestHealthEndpoint(t *testing.T) {
	w := httptest.NewRecorder()
	healthHandler(w, httptest.NewRequest("GET", "/health", nil))

	body, _ := io.ReadAll(w.Result().Body)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if string(body) != "OK" {
		t.Errorf("body = %q, want OK", body)
	}
}

func TestPartsEndpoint(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.AddPart("LM317T", testutil.NewPart("LM317T", "ST"), testutil.NewPart("LM317T", "Texas Instruments"))
	mock.SetQueryError("XYZ", "not found")

	mux := newMux(newTestEngine(t, mock.URL()), 2*time.Second, zerolog.Nop())

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantState  string
		wantParts  int
		wantMsg    string
	}{
		{"any result", "/v1/parts/LM317T", http.StatusOK, "matched", 1, ""},
		{"manufacturer filter walks pages", "/v1/parts/LM317T?manufacturer=texas", http.StatusOK, "matched", 2, ""},
		{"failed lookup", "/v1/parts/XYZ", http.StatusBadGateway, "failed", 0, "not found"},
		{"bad wait parameter", "/v1/parts/LM317T?wait=maybe", http.StatusBadRequest, "", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantState == "" {
				return
			}
			var resp partsResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantState {
				t.Errorf("status field = %q, want %q", resp.Status, tt.wantState)
			}
			if len(resp.Parts) != tt.wantParts {
				t.Errorf("parts = %d, want %d", len(resp.Parts), tt.wantParts)
			}
			if resp.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", resp.Message, tt.wantMsg)
			}
		})
	}
}

func TestPartsEndpoint_Poll(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.AddPart("BC547", testutil.NewPart("BC547", "NXP"))

	mux := newMux(newTestEngine(t, mock.URL()), time.Second, zerolog.Nop())

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/v1/parts/BC547?wait=false", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("first poll status = %d, want 202", w.Code)
	}

	deadline := time.Now().Add(time.Second)
	for {
		w = httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("GET", "/v1/parts/BC547?wait=false", nil))
		if w.Code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("poll never reached a final state, last body %s", w.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}

	var resp partsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "exhausted" || !resp.Exhausted || len(resp.Parts) != 1 {
		t.Errorf("final poll = %+v", resp)
	}
}

func TestPartsEndpoint_Timeout(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.AddPart("BC547", testutil.NewPart("BC547", "NXP"))
	mock.SetDelay(200 * time.Millisecond)

	mux := newMux(newTestEngine(t, mock.URL()), 20*time.Millisecond, zerolog.Nop())

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/v1/parts/BC547", nil))
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.AddPart("BC547", testutil.NewPart("BC547", "NXP"))

	mux := newMux(newTestEngine(t, mock.URL()), time.Second, zerolog.Nop())
	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/parts/BC547", nil))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	for _, name := range []string{"partmatch_flushes_total", "partmatch_requests_total"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestRunQuery(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.AddPart("LM317T", testutil.NewPart("LM317T", "Texas Instruments"))
	mock.AddPart("NE555", testutil.NewPart("NE555", "Texas Instruments"))
	mock.SetQueryError("XYZ", "not found")

	engine := newTestEngineDebounce(t, mock.URL(), 50*time.Millisecond)
	results, err := runQuery(context.Background(), engine, []string{"LM317T", "NE555", "XYZ", "NOPE"}, &queryFlags{}, 2*time.Second)
	if err != nil {
		t.Fatalf("runQuery() error = %v", err)
	}

	want := map[string]string{"LM317T": "matched", "NE555": "matched", "XYZ": "failed", "NOPE": "exhausted"}
	for _, r := range results {
		if r.Status != want[r.MPN] {
			t.Errorf("%s status = %q, want %q", r.MPN, r.Status, want[r.MPN])
		}
	}
	if results[3].Note == "" {
		t.Error("empty lookup should carry the no-results note")
	}

	// One batch for all four, then XYZ retried once.
	if got := mock.RequestCount(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestWriteResults(t *testing.T) {
	var buf bytes.Buffer
	if err := writeResults(&buf, []queryResult{{MPN: "A", Status: "matched"}}, true); err != nil {
		t.Fatal(err)
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("compact output spans lines: %q", buf.String())
	}
}

func TestQueryCommand(t *testing.T) {
	mock := testutil.NewMockPartsAPI()
	defer mock.Close()
	mock.AddPart("LM317T", testutil.NewPart("LM317T", "Texas Instruments"))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{
		"query", "LM317T",
		"--config", "",
		"--api-key", "flag-key",
		"--base-url", mock.URL(),
		"--debounce", "5ms",
		"--log-level", "off",
		"--compact",
	})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var results []queryResult
	if err := json.Unmarshal(out.Bytes(), &results); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if len(results) != 1 || results[0].Status != "matched" {
		t.Errorf("results = %+v", results)
	}
	if reqs := mock.Requests(); len(reqs) != 1 || reqs[0].APIKey != "flag-key" {
		t.Errorf("requests = %+v", reqs)
	}
}

func parseOptions(t *testing.T, args ...string) (*options, error) {
	t.Helper()
	opts := &options{cfg: cliconfig.DefaultConfig()}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	bindFlags(fs, opts)
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	return opts, opts.resolve(fs)
}

func TestResolvePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `api_key = "file-key"
base_url = "http://file.example/api/"
batch_size = 3
max_offset = 10
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PARTLOOKUP_API_KEY", "")
	t.Setenv("PARTLOOKUP_BATCH_SIZE", "4")

	opts, err := parseOptions(t, "--config", path, "--max-offset", "20")
	if err != nil {
		t.Fatalf("resolve() error = %v", err)
	}

	cfg := opts.cfg
	if cfg.APIKey != "file-key" {
		t.Errorf("APIKey = %q, want file value", cfg.APIKey)
	}
	if cfg.BaseURL != "http://file.example/api" {
		t.Errorf("BaseURL = %q, want trimmed file value", cfg.BaseURL)
	}
	if cfg.BatchSize != 4 {
		t.Errorf("BatchSize = %d, want env value 4", cfg.BatchSize)
	}
	if cfg.MaxOffset != 20 {
		t.Errorf("MaxOffset = %d, want flag value 20", cfg.MaxOffset)
	}
	if !opts.changed["max-offset"] || opts.changed["api-key"] {
		t.Errorf("changed = %v", opts.changed)
	}
}

func TestResolveErrors(t *testing.T) {
	if _, err := parseOptions(t, "--config", filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for explicit missing config file")
	}
	if _, err := parseOptions(t, "--config", "", "--batch-size", "0"); err == nil {
		t.Error("expected validation error")
	}
	if _, err := parseOptions(t, "--config", ""); err != nil {
		t.Errorf("empty config path: %v", err)
	}
}

func TestTerminalPrompt(t *testing.T) {
	proxy, _ := url.Parse("http://proxy.example:3128")

	tests := []struct {
		name     string
		input    string
		terminal bool
		password string
		want     client.Credentials
		wantErr  error
	}{
		{"credentials", "alice\n", true, "secret", client.Credentials{Username: "alice", Password: "secret"}, nil},
		{"empty username declines", "\n", true, "", client.Credentials{}, client.ErrCredentialsDeclined},
		{"no terminal declines", "alice\n", false, "secret", client.Credentials{}, client.ErrCredentialsDeclined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := &terminalPrompt{
				in:           bufio.NewReader(strings.NewReader(tt.input)),
				out:          &out,
				isTerminal:   func(int) bool { return tt.terminal },
				readPassword: func(int) ([]byte, error) { return []byte(tt.password), nil },
			}

			got, err := p.ProxyCredentials(context.Background(), proxy)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("credentials = %+v, want %+v", got, tt.want)
			}
			if tt.terminal && !strings.Contains(out.String(), "proxy.example:3128") {
				t.Errorf("prompt %q does not name the proxy", out.String())
			}
		})
	}
}
