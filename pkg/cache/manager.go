package cache

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/partmatch-client/pkg/partmatch"
	"github.com/rs/zerolog"
)

var (
	// ErrMissingAPIKey is recorded on records enqueued while no API key is configured.
	ErrMissingAPIKey = errors.New("api key is not specified; configure an API key before looking up parts")
)

// NoResultsNote is attached to completed pages that matched nothing.
const NoResultsNote = "query did not provide a result; please widen your search criteria"

// EnqueueOutcome reports what Enqueue did.
type EnqueueOutcome int

const (
	// EnqueueCreated means a new awaiting record was created.
	EnqueueCreated EnqueueOutcome = iota

	// EnqueueReset means a failed record was reset to awaiting.
	EnqueueReset

	// EnqueueExists means the record already existed and was left alone.
	EnqueueExists
)

// String returns the outcome name used in logs and metric labels.
func (o EnqueueOutcome) String() string {
	switch o {
	case EnqueueCreated:
		return "created"
	case EnqueueReset:
		return "reset"
	case EnqueueExists:
		return "exists"
	default:
		return "unknown"
	}
}

// Pending reports whether the outcome made a record eligible for a flush.
func (o EnqueueOutcome) Pending() bool {
	return o == EnqueueCreated || o == EnqueueReset
}

// Config holds cache configuration.
type Config struct {
	// PageLimit is the number of results requested per page.
	PageLimit int
}

// DefaultConfig returns the default cache configuration. One result per page
// keeps loosely matching part numbers out of a key's results.
func DefaultConfig() Config {
	return Config{PageLimit: 1}
}

// Manager is the keyed store of lookup records and the single source of
// truth callers read from.
//
// Writes are serialized. Get, LastError and IsExhausted only take the read
// lock and observe whatever has been committed so far.
type Manager struct {
	mu      sync.RWMutex
	records map[RecordKey]*Record
	byKey   map[string][]*Record
	pending int
	seq     uint64
	failSeq uint64

	watchMu  sync.Mutex
	watchers map[string]chan struct{}

	limit  int
	logger zerolog.Logger
}

// NewManager creates an empty record store.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultConfig().PageLimit
	}
	return &Manager{
		records:  make(map[RecordKey]*Record),
		byKey:    make(map[string][]*Record),
		watchers: make(map[string]chan struct{}),
		limit:    cfg.PageLimit,
		logger:   logger.With().Str("component", "cache").Logger(),
	}
}

// Limit returns the page size records are created with.
func (m *Manager) Limit() int {
	return m.limit
}

// Enqueue makes sure a record exists for (key, offset).
// A failed record is reset to awaiting; any other existing record is left
// untouched; a missing record is created awaiting.
func (m *Manager) Enqueue(key string, offset int) EnqueueOutcome {
	key = NormalizeKey(key)
	rk := RecordKey{Key: key, Offset: offset}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[rk]; ok {
		if rec.State != StateFailed {
			EnqueueTotal.WithLabelValues(EnqueueExists.String()).Inc()
			return EnqueueExists
		}
		m.transition(rec, StateAwaiting)
		rec.Err = ""
		m.logger.Debug().
			Str("key", key).
			Int("offset", offset).
			Msg("Failed record reset for retry")
		EnqueueTotal.WithLabelValues(EnqueueReset.String()).Inc()
		m.notify(key)
		return EnqueueReset
	}

	m.seq++
	rec := &Record{
		Key:       key,
		Offset:    offset,
		Limit:     m.limit,
		State:     StateAwaiting,
		UpdatedAt: time.Now(),
		seq:       m.seq,
	}
	m.records[rk] = rec
	m.byKey[key] = append(m.byKey[key], rec)
	m.pending++
	Records.WithLabelValues(StateAwaiting.String()).Inc()

	m.logger.Debug().
		Str("key", key).
		Int("offset", offset).
		Int("limit", m.limit).
		Msg("Record enqueued")
	EnqueueTotal.WithLabelValues(EnqueueCreated.String()).Inc()
	m.notify(key)
	return EnqueueCreated
}

// TakeAwaiting moves every awaiting record to in-flight and returns their
// tickets in enqueue order. The returned batch never holds the same
// (key, offset) twice.
func (m *Manager) TakeAwaiting() []Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == 0 {
		return nil
	}

	taken := make([]*Record, 0, m.pending)
	for _, rec := range m.records {
		if rec.State == StateAwaiting {
			taken = append(taken, rec)
		}
	}
	sort.Slice(taken, func(i, j int) bool { return taken[i].seq < taken[j].seq })

	tickets := make([]Ticket, len(taken))
	touched := make(map[string]struct{})
	for i, rec := range taken {
		m.transition(rec, StateInFlight)
		tickets[i] = rec.Ticket()
		touched[rec.Key] = struct{}{}
	}
	for key := range touched {
		m.notify(key)
	}
	return tickets
}

// Complete stores the page results of an in-flight record.
// It returns false if the record is not in flight; Items are never
// overwritten once set.
func (m *Manager) Complete(key string, offset int, items []partmatch.Part, totalHits int, note string) bool {
	key = NormalizeKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[RecordKey{Key: key, Offset: offset}]
	if !ok || rec.State != StateInFlight {
		m.logger.Warn().
			Str("key", key).
			Int("offset", offset).
			Bool("exists", ok).
			Msg("Ignoring result for record that is not in flight")
		return false
	}

	if items == nil {
		items = []partmatch.Part{}
	}
	rec.Items = items
	rec.TotalHits = totalHits
	rec.Note = note
	rec.Err = ""
	m.transition(rec, StateCompleted)
	m.notify(key)
	return true
}

// Fail marks an awaiting or in-flight record as failed with msg.
func (m *Manager) Fail(key string, offset int, msg string) bool {
	key = NormalizeKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[RecordKey{Key: key, Offset: offset}]
	if !ok || (rec.State != StateAwaiting && rec.State != StateInFlight) {
		return false
	}
	m.fail(rec, msg)
	m.notify(key)
	return true
}

// FailBatch marks every record of a batch failed with the same message.
func (m *Manager) FailBatch(tickets []Ticket, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	touched := make(map[string]struct{})
	for _, t := range tickets {
		rec, ok := m.records[t.RecordKey()]
		if !ok || rec.State != StateInFlight {
			continue
		}
		m.fail(rec, msg)
		touched[rec.Key] = struct{}{}
	}
	for key := range touched {
		m.notify(key)
	}
}

// PendingCount returns the number of awaiting records.
func (m *Manager) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pending
}

// Get returns the items of every completed page of key, in page order.
// It returns an empty slice, not an error, while nothing has completed.
func (m *Manager) Get(key string) []partmatch.Part {
	key = NormalizeKey(key)

	m.mu.RLock()
	defer m.mu.RUnlock()

	items := []partmatch.Part{}
	for _, rec := range m.sorted(key) {
		if rec.State == StateCompleted {
			items = append(items, rec.Items...)
		}
	}
	if len(items) > 0 {
		CacheReads.WithLabelValues("hit").Inc()
	} else {
		CacheReads.WithLabelValues("miss").Inc()
	}
	return items
}

// LastError returns the message of the most recently failed record of key,
// or "" if no record of key is failed.
func (m *Manager) LastError(key string) string {
	key = NormalizeKey(key)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Record
	for _, rec := range m.byKey[key] {
		if rec.State == StateFailed && (latest == nil || rec.failSeq > latest.failSeq) {
			latest = rec
		}
	}
	if latest == nil {
		return ""
	}
	return latest.Err
}

// IsExhausted reports whether every hit the remote reported for key has been
// fetched. It is false while no page of key has completed.
func (m *Manager) IsExhausted(key string) bool {
	key = NormalizeKey(key)

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exhausted(key)
}

// Summary returns a consistent view of the records of key.
func (m *Manager) Summary(key string) Summary {
	key = NormalizeKey(key)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Summary
	for _, rec := range m.sorted(key) {
		s.Exists = true
		if rec.Offset > s.MaxOffset {
			s.MaxOffset = rec.Offset
		}
		switch rec.State {
		case StateAwaiting, StateInFlight:
			s.Pending = true
		case StateFailed:
			s.Failed = append(s.Failed, rec.Offset)
		case StateCompleted:
			s.Completed++
		}
	}
	s.Exhausted = m.exhausted(key)
	return s
}

// Records returns copies of the records of key, in page order.
func (m *Manager) Records(key string) []Record {
	key = NormalizeKey(key)

	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.sorted(key)
	out := make([]Record, len(recs))
	for i, rec := range recs {
		out[i] = *rec
		out[i].Items = append([]partmatch.Part(nil), rec.Items...)
	}
	return out
}

// Changed returns a channel that is closed the next time any record of key
// changes. Callers take the channel before reading state so no change is
// missed.
func (m *Manager) Changed(key string) <-chan struct{} {
	key = NormalizeKey(key)

	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	ch, ok := m.watchers[key]
	if !ok {
		ch = make(chan struct{})
		m.watchers[key] = ch
	}
	return ch
}

// notify wakes waiters of key.
func (m *Manager) notify(key string) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	if ch, ok := m.watchers[key]; ok {
		close(ch)
		delete(m.watchers, key)
	}
}

// fail must be called with mu held.
func (m *Manager) fail(rec *Record, msg string) {
	m.failSeq++
	rec.failSeq = m.failSeq
	rec.Err = msg
	m.transition(rec, StateFailed)
	m.logger.Debug().
		Str("key", rec.Key).
		Int("offset", rec.Offset).
		Str("error", msg).
		Msg("Record failed")
}

// transition must be called with mu held.
func (m *Manager) transition(rec *Record, to State) {
	from := rec.State
	if from == to {
		return
	}
	if from == StateAwaiting {
		m.pending--
	}
	if to == StateAwaiting {
		m.pending++
	}
	rec.State = to
	rec.UpdatedAt = time.Now()
	Records.WithLabelValues(from.String()).Dec()
	Records.WithLabelValues(to.String()).Inc()
}

// exhausted must be called with mu held.
func (m *Manager) exhausted(key string) bool {
	completed := 0
	fetched := 0
	maxHits := 0
	for _, rec := range m.byKey[key] {
		if rec.State != StateCompleted {
			continue
		}
		completed++
		fetched += len(rec.Items)
		if rec.TotalHits > maxHits {
			maxHits = rec.TotalHits
		}
	}
	return completed > 0 && fetched == maxHits
}

// sorted must be called with mu held.
func (m *Manager) sorted(key string) []*Record {
	recs := append([]*Record(nil), m.byKey[key]...)
	sort.Slice(recs, func(i, j int) bool { return recs[i].Offset < recs[j].Offset })
	return recs
}
