package link

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// Open retry schedule. USB adapters take a moment to enumerate after a
// board reset, and TCP bridges refuse connections while rebooting.
const (
	openInitialInterval = 25 * time.Millisecond
	openMaxInterval     = 1 * time.Second
	openMaxElapsed      = 3 * time.Second
)

// retryOpen calls open with exponential backoff until it succeeds, the
// schedule runs out or ctx is done. The last error from open is returned.
func retryOpen(ctx context.Context, open func() error) error {
	var last error
	op := func() error {
		last = open()
		return last
	}

	err := backoff.Retry(op, backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     openInitialInterval,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         openMaxInterval,
		MaxElapsedTime:      openMaxElapsed,
		Clock:               backoff.SystemClock}, ctx))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && last == nil {
		return ctx.Err()
	}
	return last
}
