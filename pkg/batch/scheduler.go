package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/partmatch-client/pkg/cache"
	"github.com/Sternrassler/partmatch-client/pkg/client"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrClosed is recorded on records enqueued after Close and on records
// still awaiting when Close is called.
var ErrClosed = errors.New("lookup engine is closed")

// Trigger names what caused a flush.
type Trigger string

const (
	// TriggerSize is a flush caused by a full batch.
	TriggerSize Trigger = "size"

	// TriggerTimer is a flush caused by the debounce timer.
	TriggerTimer Trigger = "timer"

	// TriggerManual is a flush requested by the caller.
	TriggerManual Trigger = "manual"
)

// Executor sends a batch and writes the outcome to sink.
// *client.Client implements it.
type Executor interface {
	ExecuteBatch(ctx context.Context, batch []cache.Ticket, sink client.Sink) error
	Settings() client.Settings
}

// Config holds scheduler configuration.
type Config struct {
	// BatchSize is the number of awaiting records that triggers an immediate flush.
	BatchSize int

	// Debounce is how long the timer waits before flushing a partial batch.
	Debounce time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize: 10,
		Debounce:  200 * time.Millisecond,
	}
}

// Scheduler collects awaiting records into batches.
type Scheduler struct {
	cache  *cache.Manager
	exec   Executor
	config Config
	logger zerolog.Logger

	flushMu sync.Mutex

	timerMu sync.Mutex
	timer   *time.Timer
	gen     uint64
	armed   bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler flushing records of c through exec.
func New(cfg Config, c *cache.Manager, exec Executor, logger zerolog.Logger) (*Scheduler, error) {
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1 (got %d)", cfg.BatchSize)
	}
	if cfg.Debounce <= 0 {
		return nil, fmt.Errorf("debounce must be > 0 (got %s)", cfg.Debounce)
	}
	if c == nil || exec == nil {
		return nil, fmt.Errorf("cache and executor are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cache:  c,
		exec:   exec,
		config: cfg,
		logger: logger.With().Str("component", "batch").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Enqueue registers (key, offset) with the cache and schedules a flush if the
// record became awaiting. Without an API key, or once the scheduler is
// closed, the record is failed at once and never sent.
func (s *Scheduler) Enqueue(key string, offset int) cache.EnqueueOutcome {
	outcome := s.cache.Enqueue(key, offset)
	if !outcome.Pending() {
		return outcome
	}

	if s.isClosed() {
		s.cache.Fail(key, offset, ErrClosed.Error())
		s.logger.Debug().
			Str("key", cache.NormalizeKey(key)).
			Int("offset", offset).
			Msg("Scheduler closed - record failed")
		return outcome
	}

	if s.exec.Settings().APIKey == "" {
		s.cache.Fail(key, offset, cache.ErrMissingAPIKey.Error())
		missingAPIKeyTotal.Inc()
		s.logger.Warn().
			Str("key", cache.NormalizeKey(key)).
			Int("offset", offset).
			Msg("No API key configured - record failed")
		return outcome
	}

	if pending := s.cache.PendingCount(); pending >= s.config.BatchSize {
		s.logger.Debug().
			Int("pending", pending).
			Int("batch_size", s.config.BatchSize).
			Msg("Batch full - flushing")
		s.Flush(s.ctx, TriggerSize)
		return outcome
	}

	s.arm()
	return outcome
}

// Flush sends every awaiting record as one batch and returns the batch size.
// It blocks while another flush is running.
func (s *Scheduler) Flush(ctx context.Context, trigger Trigger) int {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.disarm()

	batch := s.cache.TakeAwaiting()
	if len(batch) == 0 {
		emptyFlushesTotal.Inc()
		s.logger.Debug().
			Str("trigger", string(trigger)).
			Msg("Flush with nothing awaiting")
		return 0
	}

	logger := s.logger.With().
		Str("batch_id", uuid.NewString()).
		Str("trigger", string(trigger)).
		Int("batch_size", len(batch)).
		Logger()

	flushesTotal.WithLabelValues(string(trigger)).Inc()
	batchSize.Observe(float64(len(batch)))
	logger.Debug().Msg("Flushing batch")

	start := time.Now()
	err := s.exec.ExecuteBatch(ctx, batch, s.cache)
	elapsed := time.Since(start)
	flushDuration.Observe(elapsed.Seconds())

	if err != nil {
		logger.Warn().Err(err).Dur("duration", elapsed).Msg("Batch failed")
	} else {
		logger.Info().Dur("duration", elapsed).Msg("Batch sent")
	}
	return len(batch)
}

// Close stops the debounce timer, cancels a timer flush in progress and
// waits for it to return. Records still awaiting are failed with ErrClosed.
func (s *Scheduler) Close() {
	s.timerMu.Lock()
	s.closed = true
	s.timerMu.Unlock()

	s.disarm()
	s.cancel()
	s.wg.Wait()

	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	if unsent := s.cache.TakeAwaiting(); len(unsent) > 0 {
		s.cache.FailBatch(unsent, ErrClosed.Error())
		s.logger.Info().
			Int("records", len(unsent)).
			Msg("Scheduler closed - awaiting records failed")
	}
}

func (s *Scheduler) isClosed() bool {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.closed
}

// arm starts the debounce timer unless it is already running.
func (s *Scheduler) arm() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.armed || s.closed {
		return
	}
	s.gen++
	gen := s.gen
	s.armed = true
	s.wg.Add(1)
	s.timer = time.AfterFunc(s.config.Debounce, func() { s.onTimer(gen) })

	s.logger.Debug().
		Dur("debounce", s.config.Debounce).
		Msg("Debounce timer armed")
}

func (s *Scheduler) onTimer(gen uint64) {
	defer s.wg.Done()

	s.timerMu.Lock()
	if s.gen == gen {
		s.armed = false
		s.timer = nil
	}
	s.timerMu.Unlock()

	s.Flush(s.ctx, TriggerTimer)
}

// disarm stops the debounce timer if it has not fired yet.
func (s *Scheduler) disarm() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if !s.armed {
		return
	}
	if s.timer.Stop() {
		s.wg.Done()
	}
	s.armed = false
	s.timer = nil
}
