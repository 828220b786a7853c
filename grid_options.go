package boardlink

import (
	"errors"
	"fmt"
	"time"
)

// gridConfig holds configuration during component grid construction.
type gridConfig struct {
	commandTemplate string
	dimensions      map[string][]string
	staticLabels    map[string]string
	parser          ResponseParser
	interval        time.Duration
	hasInterval     bool
	disabled        bool
}

// GridOption configures component grid generation for [NewComponentGrid].
type GridOption func(*gridConfig) error

// WithCommandTemplate sets the command template, in text/template syntax
// with dimension keys as variables.
//
// Example:
//
//	WithCommandTemplate("adc {{.channel}}")
//
// Returns an error if the template string is empty.
func WithCommandTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("command template required")
		}
		cfg.commandTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the dimension values for cartesian product expansion.
//
// Returns an error if the map is empty, any dimension has no values,
// or any value is an empty string.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension '%s' has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithGridLabels adds static labels to all generated components.
// On collision, static labels take precedence over dimension labels.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
func WithGridLabels(keyValues ...string) GridOption {
	return func(cfg *gridConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithGridLabels requires an even number of arguments (key-value pairs)")
		}
		if cfg.staticLabels == nil {
			cfg.staticLabels = make(map[string]string)
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.staticLabels[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithGridParser sets the [ResponseParser] for all generated components.
// If nil, components use [FloatParser].
func WithGridParser(p ResponseParser) GridOption {
	return func(cfg *gridConfig) error {
		cfg.parser = p
		return nil
	}
}

// WithGridInterval sets the refresh interval for all generated components.
//
// Returns an error if the duration is negative.
func WithGridInterval(d time.Duration) GridOption {
	return func(cfg *gridConfig) error {
		if d < 0 {
			return errors.New("interval cannot be negative")
		}
		cfg.interval = d
		cfg.hasInterval = true
		return nil
	}
}

// WithGridEnabled sets whether generated components poll from start.
func WithGridEnabled(enabled bool) GridOption {
	return func(cfg *gridConfig) error {
		cfg.disabled = !enabled
		return nil
	}
}
