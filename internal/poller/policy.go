package poller

import (
	"fmt"
	"strings"
)

// Policy decides when the next timer is armed after a poll fires.
type Policy int

const (
	// FixedDelay arms the next timer one interval after the previous poll's
	// response has been processed. A slow channel stretches the effective
	// interval instead of flooding the queue.
	FixedDelay Policy = iota

	// FixedRate arms the next timer as soon as the current one fires. A tick
	// that arrives while the previous poll is still outstanding is skipped.
	FixedRate
)

// String returns "fixed-delay" or "fixed-rate".
func (p Policy) String() string {
	switch p {
	case FixedDelay:
		return "fixed-delay"
	case FixedRate:
		return "fixed-rate"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts "fixed-delay" or "fixed-rate" to a [Policy].
// An empty string yields [FixedDelay].
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fixed-delay", "fixed_delay", "delay":
		return FixedDelay, nil
	case "fixed-rate", "fixed_rate", "rate":
		return FixedRate, nil
	default:
		return FixedDelay, fmt.Errorf("unknown polling policy %q (expected fixed-delay or fixed-rate)", s)
	}
}

// State is the observable phase of a [Poller].
type State int

const (
	// Disabled means no timer is armed. A poll submitted before disabling
	// may still complete.
	Disabled State = iota

	// Armed means the timer is pending and no poll is outstanding.
	Armed

	// Pending means a poll has been submitted and not yet processed.
	Pending
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Armed:
		return "armed"
	case Pending:
		return "pending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
