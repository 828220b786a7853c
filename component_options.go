package boardlink

import (
	"errors"
	"time"
)

// componentConfig holds mutable state during component construction.
type componentConfig struct {
	parser      ResponseParser
	interval    time.Duration
	hasInterval bool
	labels      map[string]string
	disabled    bool
}

// ComponentOption configures a [Component] during construction.
// Options return an error if validation fails.
type ComponentOption func(*componentConfig) error

// WithParser sets how the component's response is turned into a value.
// Defaults to [FloatParser].
//
// Returns an error if p is nil.
func WithParser(p ResponseParser) ComponentOption {
	return func(cfg *componentConfig) error {
		if p == nil {
			return errors.New("parser cannot be nil")
		}
		cfg.parser = p
		return nil
	}
}

// WithInterval sets the component's own refresh interval, overriding the
// controller's polling interval. Zero polls back to back, as fast as the
// shared channel allows.
//
// Returns an error if the duration is negative.
func WithInterval(d time.Duration) ComponentOption {
	return func(cfg *componentConfig) error {
		if d < 0 {
			return errors.New("interval cannot be negative")
		}
		cfg.interval = d
		cfg.hasInterval = true
		return nil
	}
}

// WithLabels adds metadata labels for grouping in the dashboard.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	boardlink.WithLabels("board", "sensor", "bus", "i2c")
func WithLabels(keyValues ...string) ComponentOption {
	return func(cfg *componentConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithLabels requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.labels[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithEnabled sets whether polling starts with the controller. Defaults to
// true. A component started disabled can still be enabled at runtime.
func WithEnabled(enabled bool) ComponentOption {
	return func(cfg *componentConfig) error {
		cfg.disabled = !enabled
		return nil
	}
}
