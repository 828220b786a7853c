package boardlink

import (
	"errors"
	"time"
)

// ErrMalformed is wrapped by parsers when a response cannot be interpreted.
var ErrMalformed = errors.New("malformed response")

// ResponseParser turns a board's response line into a numeric value.
//
// A parser returns an error wrapping [ErrMalformed] when the response does
// not have the expected shape. The component's [Reading] is then left
// unchanged, so a component whose polls keep failing simply goes stale.
//
// Built-in parsers: [FloatParser], [FieldParser], [ScaledParser],
// [JSONFieldParser], [RegexParser], [AckParser] and [FirstMatch].
//
// # Panic Safety
//
// Parsers run inside the dispatch worker's recovery boundary. A panicking
// parser is logged with a correlation ID and treated as a failed poll.
type ResponseParser func(raw string) (float64, error)

// Reading is the latest successfully applied value of a component.
//
// A zero Reading (see [Reading.Valid]) means the component has not yet
// produced a value. Readings are values; mutating one does not affect the
// controller.
type Reading struct {
	// Component is the component's name.
	Component string

	// Command is the command that produced the reading.
	Command string

	// Value is the parsed value.
	Value float64

	// Raw is the response line Value was parsed from.
	Raw string

	// Labels contains the component's key-value metadata.
	Labels map[string]string

	// Latency is the exchange time, from sending the command to applying
	// the response.
	Latency time.Duration

	// UpdatedAt is when the reading was applied.
	UpdatedAt time.Time

	// Seq counts successful polls of the component, starting at 1.
	Seq uint64
}

// Valid reports whether the reading holds a value.
func (r Reading) Valid() bool {
	return r.Seq > 0
}

// Age returns how long ago the reading was applied, or zero for an invalid
// reading.
func (r Reading) Age() time.Duration {
	if !r.Valid() {
		return 0
	}
	return time.Since(r.UpdatedAt)
}
