package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single exchange when no [WithTimeout] is given.
const DefaultTimeout = 500 * time.Millisecond

// Result describes one processed ticket. It is passed to the observer
// registered with [WithObserver].
type Result struct {
	// TicketID identifies the queue entry.
	TicketID string

	// Priority is the level the entry was queued at.
	Priority Priority

	// Command is the transmitted command. Empty if generation failed.
	Command string

	// Response is the raw response. Empty on timeout or transport error.
	Response string

	// Latency covers the exchange and response handling.
	Latency time.Duration

	// Waited is the time the entry spent in the queue.
	Waited time.Duration

	// CompletedAt is when processing finished.
	CompletedAt time.Time

	// Err is nil on success.
	Err error
}

// Timeout reports whether the exchange failed because it ran out of time.
func (r Result) Timeout() bool {
	return errors.Is(r.Err, context.DeadlineExceeded)
}

// Stats holds cumulative worker counters.
type Stats struct {
	Exchanges uint64
	Failures  uint64
	Timeouts  uint64
}

// WorkerOption configures a [Worker].
type WorkerOption func(*Worker)

// WithTimeout bounds every exchange. Values <= 0 keep [DefaultTimeout].
func WithTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithMinGap enforces a minimum spacing between the start of consecutive
// exchanges, for boards that need settle time between commands.
// Zero disables spacing.
func WithMinGap(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.limiter = rate.NewLimiter(rate.Every(d), 1)
		} else {
			w.limiter = nil
		}
	}
}

// WithLogger sets the logger. Nil keeps [slog.Default].
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithObserver registers a function called after every processed ticket,
// before the ticket's waiters are released. It runs on the worker goroutine
// and must not block.
func WithObserver(fn func(Result)) WorkerOption {
	return func(w *Worker) {
		w.observer = fn
	}
}

// Worker is the single consumer of a [Queue] and the only caller of its
// [Exchanger].
//
// Worker runs one ticket at a time, so at most one exchange is in flight on
// the channel. A timed-out, failed or malformed exchange is logged and
// recorded on its ticket; it never stops the loop.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Worker struct {
	queue    *Queue
	link     Exchanger
	timeout  time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger
	observer func(Result)

	exchanges atomic.Uint64
	failures  atomic.Uint64
	timeouts  atomic.Uint64

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorker creates a [Worker] that drains q onto link.
// The worker does nothing until [Worker.Start] is called.
func NewWorker(q *Queue, link Exchanger, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:   q,
		link:    link,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Queue returns the queue the worker consumes.
func (w *Worker) Queue() *Queue {
	return w.queue
}

// Stats returns a snapshot of the worker counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Exchanges: w.exchanges.Load(),
		Failures:  w.failures.Load(),
		Timeouts:  w.timeouts.Load(),
	}
}

// Start launches the worker loop in a background goroutine.
//
// Start is idempotent; calls after the first are no-ops. If Stop was called
// before Start, Start is a no-op. If ctx is nil, context.Background() is used.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.started = true
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		w.run(runCtx)
	}()
}

// Stop halts the loop, waits for the in-flight exchange to finish and closes
// the queue so that every pending waiter is released with [ErrClosed].
//
// Stop is idempotent and safe to call before Start.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		if w.cancel != nil {
			w.cancel()
		}
	}
	w.mu.Unlock()

	w.wg.Wait()
	w.queue.Close()
}

// Wait blocks until the worker loop has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	w.logger.Debug("dispatch worker started", "timeout", w.timeout.String())
	defer w.logger.Debug("dispatch worker stopped")

	for {
		t, err := w.queue.next(ctx)
		if err != nil {
			return
		}
		w.process(ctx, t)
	}
}

// process runs a single ticket end to end and completes it.
func (w *Worker) process(ctx context.Context, t *Ticket) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			t.finish(err)
			return
		}
	}

	start := time.Now()
	result := Result{
		TicketID: t.id,
		Priority: t.priority,
		Waited:   start.Sub(t.enqueuedAt),
	}

	command, err := w.safeGenerate(t)
	if err == nil {
		result.Command = command

		exCtx, cancel := context.WithTimeout(ctx, w.timeout)
		var response string
		response, err = w.link.Exchange(exCtx, command)
		cancel()

		w.exchanges.Add(1)
		if err == nil {
			result.Response = response
			if perr := w.safeProcess(t, response); perr != nil {
				err = fmt.Errorf("response rejected: %w", perr)
			}
		} else {
			err = fmt.Errorf("exchange %q: %w", command, err)
		}
	}

	result.Err = err
	result.CompletedAt = time.Now()
	result.Latency = result.CompletedAt.Sub(start)
	w.record(result)

	t.finish(err)
}

// record updates counters, logs the outcome and notifies the observer.
func (w *Worker) record(r Result) {
	attrs := []any{
		"ticket", r.TicketID,
		"priority", r.Priority.String(),
		"command", r.Command,
		"latency_ms", r.Latency.Milliseconds(),
	}

	switch {
	case r.Err == nil:
		w.logger.Debug("exchange completed", attrs...)
	case r.Timeout():
		w.failures.Add(1)
		w.timeouts.Add(1)
		w.logger.Warn("exchange timed out", append(attrs, "error", r.Err.Error())...)
	default:
		w.failures.Add(1)
		w.logger.Warn("exchange failed", append(attrs, "error", r.Err.Error())...)
	}

	if w.observer != nil {
		w.safeObserve(r)
	}
}

// safeGenerate calls GenerateCommand with panic recovery.
func (w *Worker) safeGenerate(t *Ticket) (command string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = w.recovered("generate command", t, r)
		}
	}()
	return t.job.GenerateCommand(), nil
}

// safeProcess calls ProcessResponse with panic recovery.
func (w *Worker) safeProcess(t *Ticket, response string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = w.recovered("process response", t, r)
		}
	}()
	return t.job.ProcessResponse(response)
}

func (w *Worker) safeObserve(r Result) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("exchange observer panicked",
				"ticket", r.TicketID,
				"panic", fmt.Sprintf("%v", p),
			)
		}
	}()
	w.observer(r)
}

// recovered logs a panic with a correlation ID and converts it to an error.
func (w *Worker) recovered(stage string, t *Ticket, r any) error {
	correlationID := uuid.NewString()
	w.logger.Error("job panic",
		"stage", stage,
		"ticket", t.id,
		"correlation_id", correlationID,
		"panic", fmt.Sprintf("%v", r),
		"stack", string(debug.Stack()),
	)
	return fmt.Errorf("%s panic (correlation_id: %s)", stage, correlationID)
}
