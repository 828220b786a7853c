package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/boardlink/internal/dispatch"
)

// DefaultInterval is the refresh interval of a new [Poller].
const DefaultInterval = 300 * time.Millisecond

var (
	// ErrDisabled is returned by [Poller.Update] on a disabled poller.
	ErrDisabled = errors.New("component is disabled")

	// ErrNegativeInterval is returned for intervals below zero.
	ErrNegativeInterval = errors.New("interval must not be negative")
)

// Submitter accepts jobs for the shared channel. [dispatch.Queue]
// implements it.
type Submitter interface {
	Enqueue(job dispatch.Job, p dispatch.Priority) *dispatch.Ticket
}

// Option configures a [Poller].
type Option func(*Poller) error

// WithInterval sets the initial refresh interval. Zero polls back to back.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) error {
		if d < 0 {
			return ErrNegativeInterval
		}
		p.interval = d
		return nil
	}
}

// WithPolicy sets the re-arm policy. Defaults to [FixedDelay].
func WithPolicy(policy Policy) Option {
	return func(p *Poller) error {
		if policy != FixedDelay && policy != FixedRate {
			return errors.New("unknown polling policy")
		}
		p.policy = policy
		return nil
	}
}

// WithLogger sets the logger. Nil keeps [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

// Poller drives the periodic refresh of one component.
//
// A new Poller is disabled. While enabled it keeps a timer armed; when the
// timer fires the component's job is submitted at [dispatch.Low]. At most
// one of the poller's own polls is outstanding at a time, so successive
// polls of a component are never reordered or overlapped.
//
// All methods are safe for concurrent use.
type Poller struct {
	name   string
	job    dispatch.Job
	queue  Submitter
	policy Policy
	logger *slog.Logger

	mu          sync.Mutex
	enabled     bool
	interval    time.Duration
	timer       *time.Timer
	gen         uint64 // invalidates timers that fire after being stopped
	outstanding int
	polls       uint64
	lastPoll    time.Time
}

// New creates a disabled [Poller] that submits job to queue.
// The name is only used in log lines.
func New(name string, job dispatch.Job, queue Submitter, opts ...Option) (*Poller, error) {
	if job == nil {
		return nil, errors.New("poller requires a job")
	}
	if queue == nil {
		return nil, errors.New("poller requires a queue")
	}

	p := &Poller{
		name:     name,
		job:      job,
		queue:    queue,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Name returns the component name.
func (p *Poller) Name() string {
	return p.name
}

// Policy returns the re-arm policy.
func (p *Poller) Policy() Policy {
	return p.policy
}

// Enabled reports whether periodic polling is on.
func (p *Poller) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// SetEnabled calls [Poller.Enable] or [Poller.Disable].
func (p *Poller) SetEnabled(enabled bool) {
	if enabled {
		p.Enable()
	} else {
		p.Disable()
	}
}

// Enable turns periodic polling on and arms the timer for one interval from
// now. Enabling an enabled poller does nothing. If a poll submitted before a
// previous Disable is still outstanding, the timer is armed once it completes.
func (p *Poller) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		return
	}
	p.enabled = true
	if p.outstanding == 0 {
		p.arm()
	}
	p.logger.Debug("polling enabled", "component", p.name, "interval", p.interval)
}

// Disable cancels the timer. A poll already in the queue still runs but is
// not followed by a new timer. Disable is idempotent.
func (p *Poller) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	p.enabled = false
	p.disarm()
	p.logger.Debug("polling disabled", "component", p.name)
}

// Interval returns the refresh interval.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// SetInterval changes the refresh interval. An already armed timer keeps its
// deadline; the new interval applies from the next arm.
func (p *Poller) SetInterval(d time.Duration) error {
	if d < 0 {
		return ErrNegativeInterval
	}
	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()
	return nil
}

// State returns the current phase.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case !p.enabled:
		return Disabled
	case p.outstanding > 0:
		return Pending
	default:
		return Armed
	}
}

// Polls returns the number of polls, timed and manual, that have been
// processed.
func (p *Poller) Polls() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

// LastPoll returns when the most recent poll was processed, or the zero
// time if none has been.
func (p *Poller) LastPoll() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPoll
}

// Update refreshes the component now. It cancels the timer, submits the job
// at [dispatch.High] and blocks until the response has been processed, then
// re-arms the timer for a full interval.
//
// Update returns [ErrDisabled] on a disabled poller, [dispatch.ErrClosed] if
// the queue shut down first, and ctx.Err() if the caller stops waiting. In
// the last case the submitted job still runs and the timer is re-armed
// after it completes.
func (p *Poller) Update(ctx context.Context) error {
	p.mu.Lock()
	if !p.enabled {
		p.mu.Unlock()
		return ErrDisabled
	}
	p.disarm()
	p.outstanding++
	p.mu.Unlock()

	t := p.queue.Enqueue(p.job, dispatch.High)
	if err := t.Wait(ctx); err != nil {
		go func() {
			<-t.Done()
			p.complete(t)
		}()
		return err
	}
	p.complete(t)

	if errors.Is(t.Err(), dispatch.ErrClosed) {
		return dispatch.ErrClosed
	}
	return nil
}

// arm starts a timer for the current interval. Callers hold p.mu.
func (p *Poller) arm() {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.gen++
	gen := p.gen
	p.timer = time.AfterFunc(p.interval, func() { p.fire(gen) })
}

// disarm stops the timer and invalidates a callback already in flight.
// Callers hold p.mu.
func (p *Poller) disarm() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
}

// fire runs on the timer goroutine.
func (p *Poller) fire(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || !p.enabled {
		p.mu.Unlock()
		return
	}
	p.timer = nil

	if p.policy == FixedRate {
		p.arm()
		if p.outstanding > 0 {
			p.mu.Unlock()
			p.logger.Debug("skipping tick, previous poll outstanding", "component", p.name)
			return
		}
	}
	p.outstanding++
	p.mu.Unlock()

	t := p.queue.Enqueue(p.job, dispatch.Low)
	<-t.Done()
	p.complete(t)
}

// complete records a processed poll and, under fixed-delay, arms the next
// timer once no poll of this component is outstanding.
func (p *Poller) complete(t *dispatch.Ticket) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.outstanding--
	if errors.Is(t.Err(), dispatch.ErrClosed) {
		return
	}
	p.polls++
	p.lastPoll = time.Now()

	if p.enabled && p.timer == nil && p.outstanding == 0 {
		p.arm()
	}
}
