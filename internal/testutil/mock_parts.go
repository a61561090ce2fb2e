// Package testutil provides testing utilities for the partmatch client.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/partmatch-client/pkg/partmatch"
)

// RecordedRequest is a request received by the mock.
type RecordedRequest struct {
	APIKey  string
	Queries []partmatch.Query
	Header  http.Header
}

// MockPartsAPI is a configurable mock of the parts match endpoint.
//
// Every request is answered from the parts catalogue registered with AddPart:
// each query gets the page [start, start+limit) of the parts registered for
// its mpn, and hits is the number of registered parts. Scripted statuses
// queued with QueueStatus are served first, one per request.
type MockPartsAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	parts     map[string][]partmatch.Part
	errors    map[string]string
	omitted   map[string]bool
	statuses  []int
	headers   map[string]string
	rawBody   string
	proxyAuth string
	delay     time.Duration
	requests  []RecordedRequest
}

// NewMockPartsAPI creates and starts a new mock server.
func NewMockPartsAPI() *MockPartsAPI {
	mock := &MockPartsAPI{
		parts:   make(map[string][]partmatch.Part),
		errors:  make(map[string]string),
		omitted: make(map[string]bool),
		headers: make(map[string]string),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the base URL to configure the client with.
func (m *MockPartsAPI) URL() string {
	return m.server.URL + "/api/v4/rest"
}

// ProxyURL returns the server address for use as an HTTP proxy.
func (m *MockPartsAPI) ProxyURL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPartsAPI) Close() {
	m.server.Close()
}

// AddPart registers parts returned for mpn, in page order.
func (m *MockPartsAPI) AddPart(mpn string, parts ...partmatch.Part) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := partmatch.Normalize(mpn)
	m.parts[key] = append(m.parts[key], parts...)
}

// SetQueryError makes every query for mpn return msg as its error.
func (m *MockPartsAPI) SetQueryError(mpn, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[partmatch.Normalize(mpn)] = msg
}

// ClearQueryError removes an error set with SetQueryError.
func (m *MockPartsAPI) ClearQueryError(mpn string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errors, partmatch.Normalize(mpn))
}

// OmitItems makes results for mpn carry no items field.
func (m *MockPartsAPI) OmitItems(mpn string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitted[partmatch.Normalize(mpn)] = true
}

// QueueStatus queues statuses served, in order, before normal responses.
func (m *MockPartsAPI) QueueStatus(statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, statuses...)
}

// SetHeader adds a header to every response.
func (m *MockPartsAPI) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

// SetRawBody replaces every 200 body with body.
func (m *MockPartsAPI) SetRawBody(body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawBody = body
}

// RequireProxyAuth answers 407 unless the request carries these proxy credentials.
func (m *MockPartsAPI) RequireProxyAuth(username, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proxyAuth = "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// SetDelay delays every response.
func (m *MockPartsAPI) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// RequestCount returns the number of requests received.
func (m *MockPartsAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns the requests received so far.
func (m *MockPartsAPI) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// Reset clears recorded requests and queued statuses.
func (m *MockPartsAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.statuses = nil
}

func (m *MockPartsAPI) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/parts/match") {
		http.NotFound(w, r)
		return
	}

	var queries []partmatch.Query
	if raw := r.URL.Query().Get("queries"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &queries); err != nil {
			http.Error(w, `{"error": "malformed queries"}`, http.StatusBadRequest)
			return
		}
	}

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		APIKey:  r.URL.Query().Get("apikey"),
		Queries: queries,
		Header:  r.Header.Clone(),
	})
	delay := m.delay
	for k, v := range m.headers {
		w.Header().Set(k, v)
	}
	status := http.StatusOK
	if m.proxyAuth != "" && r.Header.Get("Proxy-Authorization") != m.proxyAuth {
		status = http.StatusProxyAuthRequired
	} else if len(m.statuses) > 0 {
		status = m.statuses[0]
		m.statuses = m.statuses[1:]
	}
	var body []byte
	if status == http.StatusOK {
		if m.rawBody != "" {
			body = []byte(m.rawBody)
		} else {
			body, _ = json.Marshal(m.respond(queries))
		}
	}
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if status == http.StatusOK {
		w.Write(body)
	} else {
		w.Write([]byte(`{"error": "` + http.StatusText(status) + `"}`))
	}
}

// respond must be called with mu held.
func (m *MockPartsAPI) respond(queries []partmatch.Query) partmatch.Response {
	resp := partmatch.Response{
		Request: &partmatch.Request{Queries: queries},
		Results: make([]partmatch.Result, len(queries)),
	}
	for i, q := range queries {
		key := partmatch.Normalize(q.MPN)
		res := partmatch.Result{Reference: q.Reference}
		switch {
		case m.errors[key] != "":
			res.Error = m.errors[key]
		case m.omitted[key]:
		default:
			all := m.parts[key]
			res.Hits = len(all)
			res.Items = []partmatch.Part{}
			if q.Start < len(all) {
				end := q.Start + q.Limit
				if end > len(all) {
					end = len(all)
				}
				res.Items = append(res.Items, all[q.Start:end]...)
			}
		}
		resp.Results[i] = res
	}
	return resp
}

// NewPart returns a part with the given mpn and manufacturer name.
func NewPart(mpn, manufacturer string) partmatch.Part {
	return partmatch.Part{
		UID:          strings.ToLower(manufacturer + "-" + mpn),
		MPN:          mpn,
		Manufacturer: &partmatch.Manufacturer{Name: manufacturer},
	}
}
