package boardlink

import (
	"errors"
	"log/slog"
	"time"
)

// ctlConfig holds mutable state during Controller construction.
type ctlConfig struct {
	title            string
	link             Link
	components       []Component
	pollingInterval  time.Duration
	policy           Policy
	exchangeTimeout  time.Duration
	minGap           time.Duration
	port             int
	logger           *slog.Logger
	readingCallbacks []func(Reading)
}

// Option is a function that configures a [Controller] during construction.
//
// Options return an error if validation fails.
//
// Built-in options: [WithLink], [WithComponent], [WithComponents],
// [WithPollingInterval], [WithPolicy], [WithExchangeTimeout], [WithMinGap],
// [WithPort], [WithTitle], [WithLogger], [WithReadingCallback].
type Option func(*ctlConfig) error

// WithLink sets the channel to the board. It is required.
//
// The controller owns the link from [Controller.Start] on and closes it on
// shutdown.
//
// Returns an error if the link is nil.
func WithLink(l Link) Option {
	return func(cfg *ctlConfig) error {
		if l == nil {
			return errors.New("link cannot be nil")
		}
		cfg.link = l
		return nil
	}
}

// WithComponent adds a single [Component] to the controller.
//
// Can be called multiple times. A controller without components is valid;
// it then only carries [Controller.Send] and [Controller.Query] traffic.
func WithComponent(c Component) Option {
	return func(cfg *ctlConfig) error {
		cfg.components = append(cfg.components, c)
		return nil
	}
}

// WithComponents adds multiple [Component] values, for example the output
// of [NewComponentGrid].
func WithComponents(components ...Component) Option {
	return func(cfg *ctlConfig) error {
		cfg.components = append(cfg.components, components...)
		return nil
	}
}

// WithPollingInterval sets the refresh interval for components that do not
// set their own with [WithInterval]. Defaults to 300 milliseconds.
//
// Returns an error if the duration is negative.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *ctlConfig) error {
		if d < 0 {
			return errors.New("polling interval cannot be negative")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithPolicy sets how component timers are re-armed. Defaults to
// [FixedDelay], which never lets a component's polls overlap.
func WithPolicy(p Policy) Option {
	return func(cfg *ctlConfig) error {
		if p != FixedDelay && p != FixedRate {
			return errors.New("unknown polling policy")
		}
		cfg.policy = p
		return nil
	}
}

// WithExchangeTimeout bounds every command/response exchange.
// Defaults to 500 milliseconds.
//
// Returns an error if the duration is zero or negative.
func WithExchangeTimeout(d time.Duration) Option {
	return func(cfg *ctlConfig) error {
		if d <= 0 {
			return errors.New("exchange timeout must be positive")
		}
		cfg.exchangeTimeout = d
		return nil
	}
}

// WithMinGap enforces a minimum spacing between consecutive commands on the
// channel. Zero, the default, sends back to back.
//
// Returns an error if the duration is negative.
func WithMinGap(d time.Duration) Option {
	return func(cfg *ctlConfig) error {
		if d < 0 {
			return errors.New("minimum gap cannot be negative")
		}
		cfg.minGap = d
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard and control API.
// Defaults to 8080. Port 0 disables the HTTP server.
//
// Returns an error if the port is outside 0-65535.
func WithPort(port int) Option {
	return func(cfg *ctlConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *ctlConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithReadingCallback registers a function called after every successful
// poll with the new [Reading].
//
// Callbacks run on the dispatch worker, between receiving a response and
// sending the next command, so they must be non-blocking. Long-running
// work belongs in a separate goroutine. Panics are recovered and logged.
//
// Multiple callbacks execute in registration order. Nil callbacks are
// ignored.
func WithReadingCallback(cb func(Reading)) Option {
	return func(cfg *ctlConfig) error {
		if cb == nil {
			return nil
		}
		cfg.readingCallbacks = append(cfg.readingCallbacks, cb)
		return nil
	}
}

// WithTitle sets the dashboard title. Defaults to "boardlink".
func WithTitle(title string) Option {
	return func(cfg *ctlConfig) error {
		cfg.title = title
		return nil
	}
}
