package boardlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/boardlink/dashboard"
	"github.com/jpalmerr/boardlink/internal/dispatch"
	"github.com/jpalmerr/boardlink/internal/poller"
	"github.com/jpalmerr/boardlink/internal/server"
	"github.com/jpalmerr/boardlink/internal/store"
)

const (
	defaultPollingInterval = poller.DefaultInterval
	defaultExchangeTimeout = dispatch.DefaultTimeout
	defaultPort            = 8080
	defaultTitle           = "boardlink"
)

var (
	// ErrUnknownComponent is returned for a component name the controller
	// was not configured with.
	ErrUnknownComponent = errors.New("unknown component")

	// ErrNotRunning is returned by operations that need the channel while
	// the controller is not started or already stopped.
	ErrNotRunning = errors.New("controller not running")

	// ErrAlreadyStarted is returned by a second call to [Controller.Start].
	ErrAlreadyStarted = errors.New("controller already started")

	// ErrInvalidCommand is returned by [Controller.Send] and
	// [Controller.Query] for an empty command or one with line breaks.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrDisabled is returned by [Controller.Update] for a component whose
	// polling is disabled.
	ErrDisabled = poller.ErrDisabled
)

type lifecycle int

const (
	stateNew lifecycle = iota
	stateStarting
	stateRunning
	stateStopped
)

// entry ties a component to its job and its poller.
type entry struct {
	component Component
	job       *componentJob
	poller    *poller.Poller

	// wantEnabled is the enabled state to apply at Start
	wantEnabled bool
}

// Controller owns the channel to a robot's boards and keeps every
// configured [Component] fresh.
//
// All traffic, periodic polls and manual requests alike, goes through one
// priority queue drained by a single worker, so exactly one command is in
// flight on the link at any time. Manual requests ([Controller.Update],
// [Controller.Send], [Controller.Query]) are queued at high priority and
// overtake pending polls.
//
// The typical lifecycle is:
//
//	ctl, err := boardlink.New(
//	    boardlink.WithLink(l),
//	    boardlink.WithComponents(components...),
//	)
//	if err != nil {
//	    slog.Error("failed to create controller", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	ctl.Start(ctx) // blocks until context cancelled
//
// A Controller runs once. All methods are safe for concurrent use.
type Controller struct {
	title           string
	port            int
	pollingInterval time.Duration
	policy          Policy
	logger          *slog.Logger
	link            Link

	queue   *dispatch.Queue
	worker  *dispatch.Worker
	store   *store.MemoryStore
	entries map[string]*entry
	order   []string

	mu    sync.Mutex
	state lifecycle
}

// New creates a [Controller] with the given options.
//
// A link must be configured via [WithLink]. Other options have defaults:
//   - Polling interval: 300 milliseconds
//   - Policy: fixed-delay
//   - Exchange timeout: 500 milliseconds
//   - Port: 8080
//
// Returns an error if no link is configured, component names are not unique
// or any option is invalid.
func New(opts ...Option) (*Controller, error) {
	cfg := &ctlConfig{
		pollingInterval: defaultPollingInterval,
		policy:          FixedDelay,
		exchangeTimeout: defaultExchangeTimeout,
		port:            defaultPort,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.link == nil {
		return nil, errors.New("a link is required")
	}

	seen := make(map[string]bool, len(cfg.components))
	for _, c := range cfg.components {
		if c.name == "" {
			return nil, errors.New("component must be created with NewComponent")
		}
		if seen[c.name] {
			return nil, fmt.Errorf("duplicate component name: %q", c.name)
		}
		seen[c.name] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	title := cfg.title
	if title == "" {
		title = defaultTitle
	}

	queue := dispatch.NewQueue()
	worker := dispatch.NewWorker(queue, cfg.link,
		dispatch.WithTimeout(cfg.exchangeTimeout),
		dispatch.WithMinGap(cfg.minGap),
		dispatch.WithLogger(logger),
	)

	ctl := &Controller{
		title:           title,
		port:            cfg.port,
		pollingInterval: cfg.pollingInterval,
		policy:          cfg.policy,
		logger:          logger,
		link:            cfg.link,
		queue:           queue,
		worker:          worker,
		store:           store.NewMemoryStore(),
		entries:         make(map[string]*entry, len(cfg.components)),
	}

	for _, c := range cfg.components {
		interval, ok := c.Interval()
		if !ok {
			interval = cfg.pollingInterval
		}

		job := newComponentJob(c, ctl.store, cfg.readingCallbacks, logger)
		p, err := poller.New(c.name, job, queue,
			poller.WithInterval(interval),
			poller.WithPolicy(cfg.policy),
			poller.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", c.name, err)
		}

		ctl.entries[c.name] = &entry{
			component:   c,
			job:         job,
			poller:      p,
			wantEnabled: c.EnabledAtStart(),
		}
		ctl.order = append(ctl.order, c.name)

		ctl.store.Update(store.Record{
			Name:       c.name,
			Command:    c.command,
			Labels:     c.Labels(),
			Enabled:    c.EnabledAtStart(),
			IntervalMs: interval.Milliseconds(),
		})
	}
	sort.Strings(ctl.order)

	return ctl, nil
}

// Start runs the dispatch worker, enables the components configured to
// poll from the start and serves the dashboard, then blocks until ctx is
// cancelled.
//
// On cancellation every component is disabled, the worker finishes the
// exchange in flight, pending waiters are released with an error and the
// link is closed.
//
// Returns nil on graceful shutdown or if ctx is already done. Returns an
// error if the HTTP server fails to start or Start was called before.
func (c *Controller) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	c.mu.Lock()
	if c.state != stateNew {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = stateStarting
	c.mu.Unlock()

	c.logger.Info("boardlink starting", "component_count", len(c.entries))

	c.worker.Start(ctx)

	if c.port != 0 {
		httpServer := server.NewServer(c.store, controlAdapter{c}, c.port, dashboard.Assets, c.title, c.logger)
		if err := httpServer.Start(ctx); err != nil {
			c.shutdown()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		c.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", c.port))
	}

	c.mu.Lock()
	for _, name := range c.order {
		e := c.entries[name]
		if e.wantEnabled {
			e.poller.Enable()
		}
	}
	c.state = stateRunning
	c.mu.Unlock()

	<-ctx.Done()
	c.shutdown()
	c.logger.Info("boardlink stopped")
	return nil
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.state = stateStopped
	for _, e := range c.entries {
		e.poller.Disable()
	}
	c.mu.Unlock()

	c.worker.Stop()
	if err := c.link.Close(); err != nil {
		c.logger.Warn("failed to close link", "error", err)
	}
}

func (c *Controller) running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateRunning
}

func (c *Controller) lookup(name string) (*entry, error) {
	e, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, name)
	}
	return e, nil
}

// Update refreshes a component now and returns its reading once the
// response has been processed.
//
// The poll is queued ahead of routine polls and the component's timer
// restarts a full interval after it completes. If the board did not answer
// or the response did not parse, the previous reading is returned
// unchanged; compare [Reading.Seq] to detect this.
//
// Returns [ErrUnknownComponent], [ErrNotRunning], [ErrDisabled], or
// ctx.Err() if the caller stops waiting.
func (c *Controller) Update(ctx context.Context, name string) (Reading, error) {
	e, err := c.lookup(name)
	if err != nil {
		return Reading{}, err
	}
	if !c.running() {
		return e.job.Reading(), ErrNotRunning
	}
	if err := e.poller.Update(ctx); err != nil {
		if errors.Is(err, dispatch.ErrClosed) {
			err = ErrNotRunning
		}
		return e.job.Reading(), err
	}
	return e.job.Reading(), nil
}

// UpdateAll refreshes every enabled component and waits for all of them.
// Disabled components are skipped. It returns the first error encountered.
func (c *Controller) UpdateAll(ctx context.Context) error {
	if !c.running() {
		return ErrNotRunning
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range c.order {
		e := c.entries[name]
		if !e.poller.Enabled() {
			continue
		}
		g.Go(func() error {
			if err := e.poller.Update(gctx); err != nil && !errors.Is(err, poller.ErrDisabled) {
				return fmt.Errorf("component %q: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// SetEnabled turns periodic polling of a component on or off.
//
// Before [Controller.Start] it sets the state the component starts in.
// Disabling stops future polls only; a poll already queued still runs.
// Both directions are idempotent.
func (c *Controller) SetEnabled(name string, enabled bool) error {
	e, err := c.lookup(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	e.wantEnabled = enabled
	if c.state == stateRunning {
		e.poller.SetEnabled(enabled)
	}
	c.mu.Unlock()

	c.store.Modify(name, func(rec *store.Record) {
		rec.Enabled = enabled
	})
	return nil
}

// Enabled reports whether periodic polling of a component is on.
func (c *Controller) Enabled(name string) (bool, error) {
	e, err := c.lookup(name)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateRunning {
		return e.poller.Enabled(), nil
	}
	return e.wantEnabled, nil
}

// SetInterval changes a component's refresh interval. A timer already
// armed keeps its deadline; the new interval applies from the next poll.
func (c *Controller) SetInterval(name string, d time.Duration) error {
	e, err := c.lookup(name)
	if err != nil {
		return err
	}
	if err := e.poller.SetInterval(d); err != nil {
		return err
	}
	c.store.Modify(name, func(rec *store.Record) {
		rec.IntervalMs = d.Milliseconds()
	})
	return nil
}

// Interval returns a component's refresh interval.
func (c *Controller) Interval(name string) (time.Duration, error) {
	e, err := c.lookup(name)
	if err != nil {
		return 0, err
	}
	return e.poller.Interval(), nil
}

// Reading returns the latest reading of a component. The second result is
// false for an unknown component or one that has not produced a value yet.
func (c *Controller) Reading(name string) (Reading, bool) {
	e, ok := c.entries[name]
	if !ok {
		return Reading{}, false
	}
	r := e.job.Reading()
	return r, r.Valid()
}

// Readings returns the latest reading of every component that has one,
// ordered by component name.
func (c *Controller) Readings() []Reading {
	out := make([]Reading, 0, len(c.order))
	for _, name := range c.order {
		if r := c.entries[name].job.Reading(); r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

// Components returns the configured components ordered by name.
func (c *Controller) Components() []Component {
	out := make([]Component, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.entries[name].component)
	}
	return out
}

// Send queues a one-off command at high priority and returns without
// waiting. The response is discarded; failures are only logged. This is
// the path for actuator commands such as motor set-points.
func (c *Controller) Send(command string) error {
	if err := validateCommand(command); err != nil {
		return err
	}
	if !c.running() {
		return ErrNotRunning
	}
	c.queue.Enqueue(&rawJob{command: command}, dispatch.High)
	return nil
}

// Query queues a one-off command at high priority and returns the board's
// raw response.
//
// Returns an error wrapping [ErrTimeout] if the board did not answer,
// [ErrNotRunning] if the controller is not running, or ctx.Err() if the
// caller stops waiting. In the last case the command is still sent.
func (c *Controller) Query(ctx context.Context, command string) (string, error) {
	if err := validateCommand(command); err != nil {
		return "", err
	}
	if !c.running() {
		return "", ErrNotRunning
	}
	job := &rawJob{command: command}
	t := c.queue.Enqueue(job, dispatch.High)
	if err := t.Wait(ctx); err != nil {
		return "", err
	}
	if err := t.Err(); err != nil {
		if errors.Is(err, dispatch.ErrClosed) {
			return "", ErrNotRunning
		}
		return "", err
	}
	return job.response, nil
}

// Stats reports channel activity.
type Stats struct {
	// Pending is the number of queued commands.
	Pending int

	// Exchanges counts completed command/response round trips.
	Exchanges uint64

	// Failures counts exchanges that timed out, failed or did not parse.
	Failures uint64

	// Timeouts counts exchanges the board did not answer in time.
	Timeouts uint64
}

// Stats returns a snapshot of channel activity.
func (c *Controller) Stats() Stats {
	ws := c.worker.Stats()
	return Stats{
		Pending:   c.queue.Len(),
		Exchanges: ws.Exchanges,
		Failures:  ws.Failures,
		Timeouts:  ws.Timeouts,
	}
}

// Port returns the configured HTTP port; 0 means the server is disabled.
func (c *Controller) Port() int {
	return c.port
}

// PollingInterval returns the interval of components without their own.
func (c *Controller) PollingInterval() time.Duration {
	return c.pollingInterval
}

// Policy returns the timer re-arm policy.
func (c *Controller) Policy() Policy {
	return c.policy
}

// Title returns the dashboard title.
func (c *Controller) Title() string {
	return c.title
}

func validateCommand(command string) error {
	if command == "" {
		return fmt.Errorf("%w: empty", ErrInvalidCommand)
	}
	if strings.ContainsAny(command, "\r\n") {
		return fmt.Errorf("%w: contains a line break", ErrInvalidCommand)
	}
	return nil
}
