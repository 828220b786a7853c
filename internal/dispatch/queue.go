package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned for entries submitted to, or still pending in, a
// closed [Queue].
var ErrClosed = errors.New("dispatch queue closed")

// Ticket is a single queued entry.
//
// A Ticket is created by [Queue.Enqueue] and completed exactly once by the
// [Worker] after its exchange has been processed, whether it succeeded,
// timed out or failed. Completion is observable through [Ticket.Done].
type Ticket struct {
	id         string
	job        Job
	priority   Priority
	enqueuedAt time.Time

	done chan struct{}
	once sync.Once
	err  error
}

func newTicket(job Job, p Priority) *Ticket {
	return &Ticket{
		id:         uuid.NewString(),
		job:        job,
		priority:   p,
		enqueuedAt: time.Now(),
		done:       make(chan struct{}),
	}
}

// ID returns the ticket's unique identifier, used in log lines.
func (t *Ticket) ID() string {
	return t.id
}

// Priority returns the level the ticket was queued at.
func (t *Ticket) Priority() Priority {
	return t.priority
}

// EnqueuedAt returns the time the ticket entered the queue.
func (t *Ticket) EnqueuedAt() time.Time {
	return t.enqueuedAt
}

// Done returns a channel that is closed once the ticket has been processed.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the ticket has been processed or ctx is done.
// It returns ctx.Err() if the context finishes first; the entry itself
// stays queued and will still run.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the outcome of the exchange: nil on success, otherwise the
// transport, timeout or response error. It returns nil until the ticket is
// done.
func (t *Ticket) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// finish records the outcome and wakes every waiter. Only the first call
// has any effect.
func (t *Ticket) finish(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Queue is an unbounded, two-level priority queue of pending jobs.
//
// Queue is safe for concurrent use by any number of producers. It has a
// single intended consumer, the [Worker]. There is no capacity limit and no
// rejection path other than [Queue.Close].
type Queue struct {
	mu     sync.Mutex
	levels [numPriorities][]*Ticket
	closed bool

	// ready holds at most one wake-up for the consumer
	ready chan struct{}
}

// NewQueue creates an empty [Queue].
func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
	}
}

// Enqueue appends job to the sub-queue for priority p and returns
// immediately. Unknown priorities are treated as [Low].
//
// If the queue is closed the returned ticket is already done with
// [ErrClosed].
func (q *Queue) Enqueue(job Job, p Priority) *Ticket {
	if !p.valid() {
		p = Low
	}
	t := newTicket(job, p)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		t.finish(ErrClosed)
		return t
	}
	q.levels[p] = append(q.levels[p], t)
	q.mu.Unlock()

	q.signal()
	return t
}

// EnqueueAndWait queues job and blocks until the worker has fully processed
// it: command sent, response received or timed out, and the response
// handler invoked.
//
// The exchange outcome is not returned; failures are logged by the worker
// and surface as unchanged owner state. EnqueueAndWait returns ctx.Err() if
// the caller stops waiting first and [ErrClosed] if the queue was closed
// before the entry ran.
func (q *Queue) EnqueueAndWait(ctx context.Context, job Job, p Priority) error {
	t := q.Enqueue(job, p)
	if err := t.Wait(ctx); err != nil {
		return err
	}
	if errors.Is(t.Err(), ErrClosed) {
		return ErrClosed
	}
	return nil
}

// Len returns the total number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, level := range q.levels {
		n += len(level)
	}
	return n
}

// LenPriority returns the number of pending entries at priority p.
func (q *Queue) LenPriority(p Priority) int {
	if !p.valid() {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.levels[p])
}

// Close rejects further entries and completes every pending ticket with
// [ErrClosed]. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	var pending []*Ticket
	for p := range q.levels {
		pending = append(pending, q.levels[p]...)
		q.levels[p] = nil
	}
	q.mu.Unlock()

	for _, t := range pending {
		t.finish(ErrClosed)
	}
	q.signal()
}

// signal wakes the consumer without blocking; a pending wake-up is enough.
func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop removes the oldest entry of the highest non-empty priority.
func (q *Queue) pop() (*Ticket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for p := numPriorities - 1; p >= 0; p-- {
		level := q.levels[p]
		if len(level) == 0 {
			continue
		}
		t := level[0]
		level[0] = nil
		q.levels[p] = level[1:]
		return t, true
	}
	return nil, false
}

// next blocks until an entry is available, the queue is closed or ctx is
// done. It suspends rather than spins while the queue is empty.
func (q *Queue) next(ctx context.Context) (*Ticket, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t, ok := q.pop(); ok {
			return t, nil
		}

		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
