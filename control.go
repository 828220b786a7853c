package boardlink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpalmerr/boardlink/internal/poller"
	"github.com/jpalmerr/boardlink/internal/server"
)

// controlAdapter exposes a Controller to the HTTP API, translating its
// errors into the server's status classes.
type controlAdapter struct {
	ctl *Controller
}

func (a controlAdapter) Update(ctx context.Context, name string) error {
	_, err := a.ctl.Update(ctx, name)
	return apiError(err)
}

func (a controlAdapter) SetEnabled(name string, enabled bool) error {
	return apiError(a.ctl.SetEnabled(name, enabled))
}

func (a controlAdapter) SetInterval(name string, d time.Duration) error {
	return apiError(a.ctl.SetInterval(name, d))
}

func (a controlAdapter) Send(command string) error {
	return apiError(a.ctl.Send(command))
}

func (a controlAdapter) Query(ctx context.Context, command string) (string, error) {
	resp, err := a.ctl.Query(ctx, command)
	return resp, apiError(err)
}

func apiError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnknownComponent):
		return fmt.Errorf("%w: %w", server.ErrNotFound, err)
	case errors.Is(err, ErrDisabled):
		return fmt.Errorf("%w: %w", server.ErrConflict, err)
	case errors.Is(err, ErrNotRunning):
		return fmt.Errorf("%w: %w", server.ErrUnavailable, err)
	case errors.Is(err, poller.ErrNegativeInterval), errors.Is(err, ErrInvalidCommand):
		return fmt.Errorf("%w: %w", server.ErrInvalid, err)
	default:
		return err
	}
}
