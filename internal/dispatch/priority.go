package dispatch

import (
	"fmt"
	"strings"
)

// Priority is the urgency of a queued job.
// Every [High] entry is dequeued before any [Low] entry.
type Priority int

const (
	// Low is used for routine timer-driven polls.
	Low Priority = iota

	// High is used for manual refreshes and actuator writes.
	High
)

// numPriorities is the number of sub-queues held by a [Queue].
const numPriorities = 2

// String returns "low" or "high".
func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case High:
		return "high"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// valid reports whether p is one of the defined levels.
func (p Priority) valid() bool {
	return p == Low || p == High
}

// ParsePriority converts "low" or "high" (case-insensitive) to a [Priority].
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return Low, nil
	case "high":
		return High, nil
	default:
		return Low, fmt.Errorf("unknown priority %q (expected low or high)", s)
	}
}
