package boardlink

import (
	"errors"
	"strings"
	"time"
)

// Component is a hardware value the controller keeps fresh by polling:
// a sonar range, a battery voltage, an IMU heading.
//
// Component is immutable after creation via [NewComponent]. All fields are
// private with getter methods that return copies of mutable data.
//
// Components are configured with [ComponentOption] functions such as
// [WithParser], [WithInterval], [WithLabels] and [WithEnabled].
type Component struct {
	name        string
	command     string
	parser      ResponseParser
	interval    time.Duration
	hasInterval bool
	labels      map[string]string
	disabled    bool
}

// Name returns the component's unique name.
func (c Component) Name() string {
	return c.name
}

// Command returns the command sent to the board on every poll.
func (c Component) Command() string {
	return c.command
}

// Parser returns the component's [ResponseParser], or nil when
// [FloatParser] applies.
func (c Component) Parser() ResponseParser {
	return c.parser
}

// Interval returns the component's own refresh interval and whether one was
// set. Without one, the controller's polling interval applies.
func (c Component) Interval() (time.Duration, bool) {
	return c.interval, c.hasInterval
}

// Labels returns a copy of the component's labels.
func (c Component) Labels() map[string]string {
	return copyMap(c.labels)
}

// EnabledAtStart reports whether polling starts with the controller.
func (c Component) EnabledAtStart() bool {
	return !c.disabled
}

// NewComponent creates a [Component] that polls the board with command.
//
// The command is sent as-is followed by the link's terminator, so it must
// not itself contain line breaks.
//
// Returns an error if the name or command is empty or any option is invalid.
//
// Example:
//
//	sonar, err := boardlink.NewComponent("Front Sonar", "sonar 1",
//	    boardlink.WithInterval(100*time.Millisecond),
//	    boardlink.WithLabels("side", "front"),
//	)
func NewComponent(name, command string, opts ...ComponentOption) (Component, error) {
	if strings.TrimSpace(name) == "" {
		return Component{}, errors.New("component name cannot be empty")
	}
	if strings.TrimSpace(command) == "" {
		return Component{}, errors.New("component command cannot be empty")
	}
	if strings.ContainsAny(command, "\r\n") {
		return Component{}, errors.New("component command cannot contain line breaks")
	}

	cfg := &componentConfig{
		labels: make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Component{}, err
		}
	}

	return Component{
		name:        name,
		command:     command,
		parser:      cfg.parser,
		interval:    cfg.interval,
		hasInterval: cfg.hasInterval,
		labels:      cfg.labels,
		disabled:    cfg.disabled,
	}, nil
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
