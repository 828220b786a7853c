package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned when no response arrives before the exchange
	// deadline. It is always wrapped together with context.DeadlineExceeded.
	ErrTimeout = errors.New("no response before deadline")

	// ErrClosed is returned by exchanges on a closed link.
	ErrClosed = errors.New("link closed")
)

const (
	defaultTxTerminator = "\r"
	defaultRxTerminator = '\n'

	// lineBuffer is the number of unread lines held before new ones are dropped
	lineBuffer = 16
)

// Link performs command/response exchanges on a physical channel.
//
// Exchange must return no later than the context deadline.
type Link interface {
	Exchange(ctx context.Context, command string) (string, error)
	io.Closer
}

// ExchangeFunc adapts a function to the [Link] interface. Close is a no-op.
type ExchangeFunc func(ctx context.Context, command string) (string, error)

// Exchange calls f.
func (f ExchangeFunc) Exchange(ctx context.Context, command string) (string, error) {
	return f(ctx, command)
}

// Close does nothing.
func (f ExchangeFunc) Close() error {
	return nil
}

// Option configures a [LineLink].
type Option func(*LineLink)

// WithTxTerminator sets the string appended to every command.
// Defaults to a carriage return.
func WithTxTerminator(term string) Option {
	return func(l *LineLink) {
		l.txTerm = term
	}
}

// WithRxTerminator sets the byte that ends a response line.
// Defaults to a line feed; surrounding whitespace is always trimmed.
func WithRxTerminator(term byte) Option {
	return func(l *LineLink) {
		l.rxTerm = term
	}
}

// WithEchoSuppression discards a response line identical to the command,
// for boards that echo their input.
func WithEchoSuppression() Option {
	return func(l *LineLink) {
		l.echo = true
	}
}

// WithSettle sets the quiet period required before the next command after
// an exchange was abandoned at its deadline. Lines that arrive during the
// period are late answers and are discarded. Zero (the default) uses the
// duration of the abandoned exchange.
func WithSettle(d time.Duration) Option {
	return func(l *LineLink) {
		if d > 0 {
			l.settle = d
		}
	}
}

// WithLogger sets the logger. Nil keeps [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(l *LineLink) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// LineLink exchanges terminator-framed ASCII lines over a byte stream.
//
// A background goroutine reads lines continuously so that an exchange can
// give up at its deadline without leaving a blocked Read behind. Lines that
// arrive while no exchange is waiting (late answers to timed-out commands,
// unsolicited output) are discarded before the next command is written.
//
// An exchange abandoned at its deadline leaves the link out of sync: the
// board may still answer it. The next exchange first waits for the line to
// stay quiet for the settle period (see [WithSettle]), discarding anything
// that arrives, and only then writes its command.
type LineLink struct {
	rw     io.ReadWriteCloser
	txTerm string
	rxTerm byte
	echo   bool
	settle time.Duration
	logger *slog.Logger

	// guarded by exchangeMu
	exchangeMu sync.Mutex
	outOfSync  bool
	abandoned  time.Duration

	lines     chan string
	readDone  chan struct{}
	readErr   error
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewLineLink wraps rw and starts reading from it. The link owns rw and
// closes it on [LineLink.Close].
func NewLineLink(rw io.ReadWriteCloser, opts ...Option) *LineLink {
	l := &LineLink{
		rw:       rw,
		txTerm:   defaultTxTerminator,
		rxTerm:   defaultRxTerminator,
		logger:   slog.Default(),
		lines:    make(chan string, lineBuffer),
		readDone: make(chan struct{}),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.readLoop()
	return l
}

// readLoop publishes every non-empty line until the stream fails.
func (l *LineLink) readLoop() {
	defer close(l.readDone)

	br := bufio.NewReader(l.rw)
	for {
		raw, err := br.ReadString(l.rxTerm)
		if line := strings.TrimSpace(strings.TrimSuffix(raw, string(l.rxTerm))); line != "" {
			select {
			case l.lines <- line:
			default:
				l.logger.Debug("dropping unread line", "line", line)
			}
		}
		if err != nil {
			l.readErr = err
			return
		}
	}
}

// Exchange writes command followed by the Tx terminator and returns the
// next response line, trimmed.
//
// It returns an error wrapping [ErrTimeout] and context.DeadlineExceeded if
// the context deadline passes first, [ErrClosed] if the link was closed, and
// the underlying read error if the stream ended.
func (l *LineLink) Exchange(ctx context.Context, command string) (string, error) {
	l.exchangeMu.Lock()
	defer l.exchangeMu.Unlock()

	select {
	case <-l.closed:
		return "", ErrClosed
	case <-l.readDone:
		return "", l.streamErr()
	default:
	}

	if l.outOfSync {
		if err := l.resync(ctx); err != nil {
			return "", err
		}
	}
	l.discardStale()

	start := time.Now()
	if err := l.write(ctx, command); err != nil {
		if ctx.Err() != nil {
			l.markOutOfSync(time.Since(start))
		}
		return "", err
	}

	for {
		select {
		case line := <-l.lines:
			if l.echo && line == command {
				continue
			}
			return line, nil
		case <-l.readDone:
			// a final line may have been published just before the stream ended
			select {
			case line := <-l.lines:
				if !(l.echo && line == command) {
					return line, nil
				}
			default:
			}
			return "", l.streamErr()
		case <-ctx.Done():
			l.markOutOfSync(time.Since(start))
			return "", ctxErr(ctx)
		}
	}
}

func (l *LineLink) markOutOfSync(elapsed time.Duration) {
	l.outOfSync = true
	l.abandoned = elapsed
}

// resync discards lines until none has arrived for the settle period. The
// period is capped at half the time left before the deadline so that the
// command itself still gets a chance to run.
func (l *LineLink) resync(ctx context.Context) error {
	window := l.settle
	if window <= 0 {
		window = l.abandoned
	}
	if deadline, ok := ctx.Deadline(); ok {
		if half := time.Until(deadline) / 2; window > half {
			window = half
		}
	}

	quiet := time.NewTimer(window)
	defer quiet.Stop()

	for {
		select {
		case line := <-l.lines:
			l.logger.Debug("discarding late line", "line", line)
			quiet.Reset(window)
		case <-quiet.C:
			l.outOfSync = false
			return nil
		case <-l.readDone:
			return l.streamErr()
		case <-ctx.Done():
			return ctxErr(ctx)
		}
	}
}

// Close closes the underlying stream. Close is idempotent.
func (l *LineLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.closeErr = l.rw.Close()
	})
	return l.closeErr
}

func (l *LineLink) discardStale() {
	for {
		select {
		case line := <-l.lines:
			l.logger.Debug("discarding stale line", "line", line)
		default:
			return
		}
	}
}

// deadliner is implemented by net.Conn.
type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

func (l *LineLink) write(ctx context.Context, command string) error {
	if d, ok := l.rw.(deadliner); ok {
		if deadline, ok := ctx.Deadline(); ok {
			_ = d.SetWriteDeadline(deadline)
		} else {
			_ = d.SetWriteDeadline(time.Time{})
		}
	}

	payload := command
	if !strings.HasSuffix(payload, l.txTerm) {
		payload += l.txTerm
	}
	n, err := io.WriteString(l.rw, payload)
	if err != nil {
		if ctx.Err() != nil {
			return ctxErr(ctx)
		}
		return fmt.Errorf("write: %w", err)
	}
	if n != len(payload) {
		return fmt.Errorf("write: short write (%d of %d bytes)", n, len(payload))
	}
	// streams without write deadlines can stall past the deadline
	if ctx.Err() != nil {
		return ctxErr(ctx)
	}
	return nil
}

func (l *LineLink) streamErr() error {
	select {
	case <-l.closed:
		return ErrClosed
	default:
	}
	if l.readErr == nil || errors.Is(l.readErr, io.EOF) {
		return fmt.Errorf("read: %w", io.EOF)
	}
	return fmt.Errorf("read: %w", l.readErr)
}

// ctxErr maps an expired deadline to ErrTimeout and passes cancellation through.
func ctxErr(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
