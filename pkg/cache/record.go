package cache

import (
	"time"

	"github.com/Sternrassler/partmatch-client/pkg/partmatch"
)

// State is the lifecycle state of a lookup record.
type State int

const (
	// StateAwaiting means the record is waiting to be flushed.
	StateAwaiting State = iota

	// StateInFlight means the record is part of a batch being sent.
	StateInFlight

	// StateFailed means the last attempt for the record failed.
	// Only an explicit re-enqueue moves it back to StateAwaiting.
	StateFailed

	// StateCompleted means the page was fetched and Items is final.
	StateCompleted
)

// String returns the state name used in logs and metric labels.
func (s State) String() string {
	switch s {
	case StateAwaiting:
		return "awaiting"
	case StateInFlight:
		return "in_flight"
	case StateFailed:
		return "failed"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Record is one page of results for one key.
type Record struct {
	// Key is the normalized lookup string.
	Key string `json:"key"`

	// Offset and Limit are the page cursor sent with the query.
	Offset int `json:"offset"`
	Limit  int `json:"limit"`

	// State is the lifecycle state.
	State State `json:"state"`

	// Items holds the parts of this page. Set once, on completion.
	Items []partmatch.Part `json:"items,omitempty"`

	// TotalHits is the total number of matches the remote reported for Key.
	TotalHits int `json:"total_hits"`

	// Err is the failure message while State is StateFailed.
	Err string `json:"error,omitempty"`

	// Note is informational text for a completed page, such as "no results".
	Note string `json:"note,omitempty"`

	// UpdatedAt is when the record last changed state.
	UpdatedAt time.Time `json:"updated_at"`

	seq     uint64
	failSeq uint64
}

// RecordKey returns the record's identity.
func (r *Record) RecordKey() RecordKey {
	return RecordKey{Key: r.Key, Offset: r.Offset}
}

// Ticket returns the value handed to the transport for this record.
func (r *Record) Ticket() Ticket {
	return Ticket{Key: r.Key, Offset: r.Offset, Limit: r.Limit}
}

// Ticket is a batch member: the query parameters of a record that has been
// moved to StateInFlight. It carries no reference to the record itself.
type Ticket struct {
	Key    string
	Offset int
	Limit  int
}

// RecordKey returns the identity of the record the ticket was taken from.
func (t Ticket) RecordKey() RecordKey {
	return RecordKey{Key: t.Key, Offset: t.Offset}
}

// Reference is the correlation string echoed back by the remote.
func (t Ticket) Reference() string {
	return t.RecordKey().String()
}

// Summary is a consistent view of all records of one key.
type Summary struct {
	// Exists is true when at least one record exists for the key.
	Exists bool

	// MaxOffset is the greatest offset enqueued for the key.
	MaxOffset int

	// Pending is true when a record is awaiting or in flight.
	Pending bool

	// Failed lists the offsets of failed records, ascending.
	Failed []int

	// Completed counts completed records.
	Completed int

	// Exhausted mirrors Manager.IsExhausted.
	Exhausted bool
}
