package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jpalmerr/boardlink/internal/dispatch"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type exchange struct {
	command    string
	start, end time.Time
}

// channel is a simulated board with a fixed turnaround that records every
// exchange and detects overlap.
type channel struct {
	delay time.Duration
	gate  chan struct{} // when set, the first exchange waits for it

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu        sync.Mutex
	exchanges []exchange
	gated     bool
}

func (c *channel) Exchange(ctx context.Context, command string) (string, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		seen := c.maxInFlight.Load()
		if n <= seen || c.maxInFlight.CompareAndSwap(seen, n) {
			break
		}
	}

	start := time.Now()

	c.mu.Lock()
	wait := c.gate != nil && !c.gated
	c.gated = true
	c.mu.Unlock()
	if wait {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	c.mu.Lock()
	c.exchanges = append(c.exchanges, exchange{command: command, start: start, end: time.Now()})
	c.mu.Unlock()
	return "ok", nil
}

func (c *channel) log() []exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]exchange(nil), c.exchanges...)
}

func (c *channel) commands() []string {
	var out []string
	for _, e := range c.log() {
		out = append(out, e.command)
	}
	return out
}

func (c *channel) count(command string) int {
	n := 0
	for _, e := range c.log() {
		if e.command == command {
			n++
		}
	}
	return n
}

func startChannel(t *testing.T, ch *channel) *dispatch.Queue {
	t.Helper()
	q := dispatch.NewQueue()
	w := dispatch.NewWorker(q, ch, dispatch.WithLogger(testLogger()), dispatch.WithTimeout(2*time.Second))
	w.Start(context.Background())
	t.Cleanup(w.Stop)
	return q
}

func newPoller(t *testing.T, name string, q Submitter, opts ...Option) *Poller {
	t.Helper()
	job := dispatch.JobFunc(func() string { return name }, nil)
	p, err := New(name, job, q, append([]Option{WithLogger(testLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(p.Disable)
	return p
}

// waitFor polls cond until it holds, failing the test after a few seconds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// checkNoOverlap fails if any recorded exchange started before the previous
// one finished.
func checkNoOverlap(t *testing.T, ch *channel) {
	t.Helper()
	if got := ch.maxInFlight.Load(); got != 1 {
		t.Errorf("max exchanges in flight = %d, want 1", got)
	}
	log := ch.log()
	for i := 1; i < len(log); i++ {
		if log[i].start.Before(log[i-1].end) {
			t.Errorf("exchange %d (%s) started before exchange %d (%s) finished", i, log[i].command, i-1, log[i-1].command)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	job := dispatch.JobFunc(func() string { return "x" }, nil)
	q := dispatch.NewQueue()

	tests := []struct {
		name    string
		job     dispatch.Job
		sub     Submitter
		opts    []Option
		wantErr error
	}{
		{name: "nil job", sub: q},
		{name: "nil submitter", job: job},
		{name: "negative interval", job: job, sub: q, opts: []Option{WithInterval(-time.Second)}, wantErr: ErrNegativeInterval},
		{name: "unknown policy", job: job, sub: q, opts: []Option{WithPolicy(Policy(9))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("x", tt.job, tt.sub, tt.opts...)
			if err == nil {
				t.Fatal("New() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	p, err := New("x", job, q)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Interval() != DefaultInterval {
		t.Errorf("Interval() = %v, want %v", p.Interval(), DefaultInterval)
	}
	if p.Policy() != FixedDelay {
		t.Errorf("Policy() = %v, want FixedDelay", p.Policy())
	}
	if p.State() != Disabled {
		t.Errorf("State() = %v, want Disabled", p.State())
	}
}

func TestPoller_StartsDisabled(t *testing.T) {
	ch := &channel{}
	q := startChannel(t, ch)
	p := newPoller(t, "sonar", q, WithInterval(10*time.Millisecond))

	time.Sleep(60 * time.Millisecond)

	if p.Enabled() {
		t.Error("Enabled() = true, want false")
	}
	if n := len(ch.log()); n != 0 {
		t.Errorf("exchanges = %d, want 0", n)
	}
	if p.Polls() != 0 {
		t.Errorf("Polls() = %d, want 0", p.Polls())
	}
}

func TestPoller_EnablePollsRepeatedly(t *testing.T) {
	ch := &channel{}
	q := startChannel(t, ch)
	p := newPoller(t, "sonar", q, WithInterval(15*time.Millisecond))

	p.Enable()
	p.Enable() // no second timer

	waitFor(t, "three polls", func() bool { return p.Polls() >= 3 })
	if !p.Enabled() {
		t.Error("Enabled() = false, want true")
	}
	if p.LastPoll().IsZero() {
		t.Error("LastPoll() is zero after polling")
	}
	if got := ch.maxInFlight.Load(); got != 1 {
		t.Errorf("max exchanges in flight = %d, want 1", got)
	}
}

func TestPoller_FirstPollAfterOneInterval(t *testing.T) {
	ch := &channel{}
	q := startChannel(t, ch)
	p := newPoller(t, "sonar", q, WithInterval(80*time.Millisecond))

	enabledAt := time.Now()
	p.Enable()

	waitFor(t, "first poll", func() bool { return p.Polls() == 1 })
	if d := ch.log()[0].start.Sub(enabledAt); d < 70*time.Millisecond {
		t.Errorf("first poll %v after enable, want about one interval", d)
	}
}

func TestPoller_DisableIdempotent(t *testing.T) {
	ch := &channel{}
	q := startChannel(t, ch)
	p := newPoller(t, "sonar", q, WithInterval(10*time.Millisecond))

	p.Disable()
	p.Disable()

	time.Sleep(50 * time.Millisecond)
	if p.State() != Disabled {
		t.Errorf("State() = %v, want Disabled", p.State())
	}
	if n := len(ch.log()); n != 0 {
		t.Errorf("exchanges = %d, want 0", n)
	}
}

func TestPoller_DisableStopsFuturePolls(t *testing.T) {
	ch := &channel{delay: 5 * time.Millisecond}
	q := startChannel(t, ch)
	p := newPoller(t, "sonar", q, WithInterval(10*time.Millisecond))

	p.Enable()
	waitFor(t, "two polls", func() bool { return p.Polls() >= 2 })

	p.SetEnabled(false)
	before := ch.count("sonar")
	time.Sleep(80 * time.Millisecond)

	// a poll already queued when disabling may still complete
	if got := ch.count("sonar"); got > before+1 {
		t.Errorf("polls after disable = %d, want at most %d", got, before+1)
	}
	if p.State() != Disabled {
		t.Errorf("State() = %v, want Disabled", p.State())
	}
}

func TestPoller_ReEnableResumes(t *testing.T) {
	ch := &channel{}
	q := startChannel(t, ch)
	p := newPoller(t, "sonar", q, WithInterval(10*time.Millisecond))

	p.Enable()
	waitFor(t, "first poll", func() bool { return p.Polls() >= 1 })
	p.Disable()
	time.Sleep(30 * time.Millisecond)
	before := p.Polls()

	p.Enable()
	waitFor(t, "polling to resume", func() bool { return p.Polls() >= before+2 })
}

func TestPoller_FixedDelayNeverOverlapsItself(t *testing.T) {
	ch := &channel{delay: 40 * time.Millisecond}
	q := startChannel(t, ch)
	p := newPoller(t, "imu", q, WithInterval(5*time.Millisecond))

	p.Enable()
	time.Sleep(300 * time.Millisecond)
	p.Disable()

	// each poll occupies at least delay+interval of wall time
	if n := ch.count("imu"); n < 3 || n > 8 {
		t.Errorf("polls = %d, want 3..8", n)
	}
	checkNoOverlap(t, ch)
}

func TestPoller_FixedRateSkipsBusyTicks(t *testing.T) {
	ch := &channel{delay: 40 * time.Millisecond}
	q := startChannel(t, ch)
	p := newPoller(t, "imu", q, WithInterval(10*time.Millisecond), WithPolicy(FixedRate))

	p.Enable()
	time.Sleep(300 * time.Millisecond)
	p.Disable()

	// ticks every 10ms but only one poll at a time fits on a 40ms channel
	if n := ch.count("imu"); n < 3 || n > 8 {
		t.Errorf("polls = %d, want 3..8", n)
	}
	if got := ch.maxInFlight.Load(); got != 1 {
		t.Errorf("max exchanges in flight = %d, want 1", got)
	}
}

func TestPoller_StatePendingWhileQueued(t *testing.T) {
	ch := &channel{gate: make(chan struct{})}
	q := startChannel(t, ch)
	p := newPoller(t, "sonar", q, WithInterval(5*time.Millisecond))

	p.Enable()
	waitFor(t, "pending state", func() bool { return p.State() == Pending })

	close(ch.gate)
	waitFor(t, "first poll", func() bool { return p.Polls() >= 1 })
	if p.State() == Disabled {
		t.Error("State() = Disabled after a completed poll, want Armed or Pending")
	}
}

func TestPoller_UpdateDisabled(t *testing.T) {
	ch := &channel{}
	q := startChannel(t, ch)
	p := newPoller(t, "sonar", q)

	err := p.Update(context.Background())

	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Update() error = %v, want ErrDisabled", err)
	}
	if n := len(ch.log()); n != 0 {
		t.Errorf("exchanges = %d, want 0", n)
	}
}

func TestPoller_UpdateBlocksUntilProcessed(t *testing.T) {
	ch := &channel{delay: 30 * time.Millisecond}
	q := startChannel(t, ch)

	var applied atomic.Bool
	job := dispatch.JobFunc(
		func() string { return "temp" },
		func(string) error { applied.Store(true); return nil },
	)
	p, err := New("temp", job, q, WithLogger(testLogger()), WithInterval(time.Minute))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(p.Disable)
	p.Enable()

	start := time.Now()
	if err := p.Update(context.Background()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if !applied.Load() {
		t.Error("Update returned before the response was processed")
	}
	if d := time.Since(start); d < 25*time.Millisecond {
		t.Errorf("Update returned after %v, before the exchange could finish", d)
	}
	if p.Polls() != 1 {
		t.Errorf("Polls() = %d, want 1", p.Polls())
	}
	if p.State() != Armed {
		t.Errorf("State() = %v, want Armed", p.State())
	}
}

// Manual update resets the fixed-delay schedule: the next timed poll comes a
// full interval after the update finished, not at the original deadline.
func TestPoller_UpdateResetsTimer(t *testing.T) {
	ch := &channel{delay: 20 * time.Millisecond}
	q := startChannel(t, ch)
	p := newPoller(t, "sonar", q, WithInterval(120*time.Millisecond))

	p.Enable()
	time.Sleep(40 * time.Millisecond)

	if err := p.Update(context.Background()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	updatedAt := time.Now()

	waitFor(t, "timed poll after update", func() bool { return ch.count("sonar") == 2 })
	next := ch.log()[1]

	// the original timer would have fired about 60ms after the update
	if d := next.start.Sub(updatedAt); d < 100*time.Millisecond {
		t.Errorf("timed poll %v after update, want a full interval", d)
	}
}

func TestPoller_UpdatePreemptsLowPriority(t *testing.T) {
	ch := &channel{gate: make(chan struct{})}
	q := startChannel(t, ch)

	// occupy the channel, then queue routine polls behind it
	q.Enqueue(dispatch.JobFunc(func() string { return "busy" }, nil), dispatch.Low)
	waitFor(t, "busy exchange", func() bool { return ch.inFlight.Load() == 1 })
	for i := 0; i < 3; i++ {
		q.Enqueue(dispatch.JobFunc(func() string { return "routine" }, nil), dispatch.Low)
	}

	p := newPoller(t, "manual", q, WithInterval(time.Minute))
	p.Enable()

	done := make(chan error, 1)
	go func() { done <- p.Update(context.Background()) }()
	waitFor(t, "manual poll queued", func() bool { return q.LenPriority(dispatch.High) == 1 })

	close(ch.gate)
	if err := <-done; err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	waitFor(t, "all exchanges", func() bool { return len(ch.log()) == 5 })
	want := []string{"busy", "manual", "routine", "routine", "routine"}
	if diff := cmp.Diff(want, ch.commands()); diff != "" {
		t.Errorf("exchange order mismatch (-want +got):\n%s", diff)
	}
}

func TestPoller_UpdateCallerGivesUp(t *testing.T) {
	ch := &channel{gate: make(chan struct{})}
	q := startChannel(t, ch)
	p := newPoller(t, "sonar", q, WithInterval(10*time.Millisecond))
	p.Enable()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Update(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Update() error = %v, want deadline exceeded", err)
	}

	// the job still runs and polling resumes afterwards
	close(ch.gate)
	waitFor(t, "polling to resume", func() bool { return p.Polls() >= 3 })
	if got := ch.maxInFlight.Load(); got != 1 {
		t.Errorf("max exchanges in flight = %d, want 1", got)
	}
}

func TestPoller_SetInterval(t *testing.T) {
	ch := &channel{}
	q := startChannel(t, ch)
	p := newPoller(t, "sonar", q, WithInterval(time.Hour))

	if err := p.SetInterval(-1); !errors.Is(err, ErrNegativeInterval) {
		t.Errorf("SetInterval(-1) error = %v, want ErrNegativeInterval", err)
	}
	if p.Interval() != time.Hour {
		t.Errorf("Interval() = %v, want 1h", p.Interval())
	}

	p.Enable()
	if err := p.SetInterval(10 * time.Millisecond); err != nil {
		t.Fatalf("SetInterval() error = %v", err)
	}

	// the armed hour-long timer is not shortened retroactively
	time.Sleep(50 * time.Millisecond)
	if p.Polls() != 0 {
		t.Errorf("Polls() = %d, want 0 before the old timer fires", p.Polls())
	}

	// a manual update re-arms with the new interval
	if err := p.Update(context.Background()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	waitFor(t, "polls at the new interval", func() bool { return p.Polls() >= 3 })
}

func TestPoller_UpdateAfterQueueClosed(t *testing.T) {
	q := dispatch.NewQueue()
	q.Close()
	p := newPoller(t, "sonar", q, WithInterval(time.Minute))
	p.Enable()

	if err := p.Update(context.Background()); !errors.Is(err, dispatch.ErrClosed) {
		t.Errorf("Update() error = %v, want ErrClosed", err)
	}
	if p.Polls() != 0 {
		t.Errorf("Polls() = %d, want 0", p.Polls())
	}
}

// Two components share one channel: a fast one (100ms) and a slow one
// (500ms), each exchange taking 10ms.
func TestPoller_TwoComponentsShareChannel(t *testing.T) {
	ch := &channel{delay: 10 * time.Millisecond}
	q := startChannel(t, ch)
	a := newPoller(t, "A", q, WithInterval(100*time.Millisecond))
	b := newPoller(t, "B", q, WithInterval(500*time.Millisecond))

	a.Enable()
	b.Enable()
	time.Sleep(time.Second)
	a.Disable()
	b.Disable()

	if n := ch.count("A"); n < 7 || n > 10 {
		t.Errorf("A polls = %d, want 7..10", n)
	}
	if n := ch.count("B"); n < 1 || n > 2 {
		t.Errorf("B polls = %d, want 1..2", n)
	}
	checkNoOverlap(t, ch)
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    Policy
		wantErr bool
	}{
		{input: "", want: FixedDelay},
		{input: "fixed-delay", want: FixedDelay},
		{input: "Fixed-Rate", want: FixedRate},
		{input: "fixed_rate", want: FixedRate},
		{input: "sometimes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePolicy(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("ParsePolicy() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePolicy() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParsePolicy(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{got: Disabled.String(), want: "disabled"},
		{got: Armed.String(), want: "armed"},
		{got: Pending.String(), want: "pending"},
		{got: FixedRate.String(), want: "fixed-rate"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}
