package boardlink

import (
	"github.com/jpalmerr/boardlink/internal/link"
	"github.com/jpalmerr/boardlink/internal/poller"
)

// Link is the physical command/response channel to the board.
//
// Exchange sends one command and returns the board's response line. It must
// return no later than the context deadline. The controller calls Exchange
// from a single goroutine and never concurrently.
//
// Use the config package to open serial or TCP links, or [LinkFunc] for
// simulations.
type Link = link.Link

// LinkFunc adapts a function to the [Link] interface. Its Close is a no-op.
type LinkFunc = link.ExchangeFunc

// ErrTimeout is wrapped by link errors when a board did not answer before
// the exchange timeout.
var ErrTimeout = link.ErrTimeout

// Policy selects how a component's timer is re-armed after a poll.
type Policy = poller.Policy

const (
	// FixedDelay arms the next poll one interval after the previous poll
	// was processed. Polls of one component never overlap.
	FixedDelay = poller.FixedDelay

	// FixedRate arms the next poll one interval after the previous timer
	// fired. Ticks that find the previous poll still pending are skipped.
	FixedRate = poller.FixedRate
)

// ParsePolicy parses "fixed-delay" or "fixed-rate".
func ParsePolicy(s string) (Policy, error) {
	return poller.ParsePolicy(s)
}
