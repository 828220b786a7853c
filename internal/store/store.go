package store

import "time"

// Record is the stored state of one polled component.
//
// Record is the storage representation used by the REST API and SSE
// stream. It is decoupled from the controller's types so both can evolve
// independently.
type Record struct {
	// Name is the component's unique name.
	Name string `json:"name"`

	// Command is the command sent to the board on each poll.
	Command string `json:"command"`

	// Value is the last successfully parsed value; nil until the first
	// successful poll.
	Value *float64 `json:"value"`

	// Raw is the response line the value was parsed from.
	Raw string `json:"raw"`

	// Labels contains key-value metadata for grouping and filtering.
	Labels map[string]string `json:"labels"`

	// Enabled reports whether periodic polling is on.
	Enabled bool `json:"enabled"`

	// IntervalMs is the refresh interval in milliseconds.
	IntervalMs int64 `json:"interval_ms"`

	// LatencyMs is the exchange time of the last successful poll.
	LatencyMs int64 `json:"latency_ms"`

	// UpdatedAt is when Value last changed. A stale timestamp is the only
	// sign of a component whose polls keep failing.
	UpdatedAt time.Time `json:"updated_at"`

	// Seq counts successful polls.
	Seq uint64 `json:"seq"`
}

// Store defines the interface for storing and subscribing to component records.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update stores a record and notifies all subscribers.
	// Records are keyed by Name; later updates replace earlier ones.
	Update(rec Record)

	// Modify applies fn to the stored record with the given name and
	// notifies subscribers. It reports false if no such record exists.
	Modify(name string, fn func(*Record)) bool

	// Get returns the record with the given name.
	Get(name string) (Record, bool)

	// GetAll returns all records ordered by name.
	GetAll() []Record

	// Subscribe returns a channel that receives record updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Record

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Record)
}
