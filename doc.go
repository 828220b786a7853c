// Package boardlink keeps a robot's hardware readings fresh over a single
// serial command channel and routes on-demand commands over the same
// channel without collisions.
//
// Each sensor or actuator value is a [Component]: a command string, a
// parser for the board's answer and a refresh interval. The [Controller]
// polls every enabled component on its own timer and lets callers refresh
// one immediately, send actuator commands, or issue raw queries. All of it
// shares one link, so the controller serialises traffic through a two-level
// priority queue: manual requests go ahead of routine polls, and exactly
// one command is ever in flight.
//
// # Quick Start
//
//	sonar, _ := boardlink.NewComponent("Front Sonar", "sonar 1",
//	    boardlink.WithInterval(100*time.Millisecond),
//	)
//	ctl, _ := boardlink.New(
//	    boardlink.WithLink(l), // see config.OpenLink
//	    boardlink.WithComponent(sonar),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	go ctl.Start(ctx) // blocks until ctx is cancelled
//
//	r, err := ctl.Update(ctx, "Front Sonar") // refresh now, wait for the value
//	_ = ctl.Send("pwm 1:120")                  // fire-and-forget
//
// # Polling
//
// Component timers are fixed-delay by default: the next poll is armed one
// interval after the previous one has been processed, so a component's
// polls never overlap however slow the board is. [FixedRate] arms on the
// timer instead and skips ticks that would overlap.
//
// A poll that times out or returns something the [ResponseParser] rejects
// is logged and leaves the component's [Reading] unchanged. Polling goes
// on; a component that keeps failing just goes stale.
//
// # Parsers
//
//   - [FloatParser]: the whole line is a number (the default)
//   - [FieldParser]: one field of a delimited line
//   - [JSONFieldParser]: a field of a JSON answer, in dot notation
//   - [RegexParser]: the first capture group of a pattern
//   - [AckParser]: 1 for an acknowledgement token
//   - [ScaledParser] and [FirstMatch] combine the others
//
// # Architecture
//
//   - internal/dispatch: priority queue and the single channel worker
//   - internal/poller: per-component fixed-delay timer state machine
//   - internal/link: line-framed exchange over serial ports and TCP bridges
//   - internal/store: in-memory readings with pub/sub
//   - internal/server: REST control API and Server-Sent Events
//   - dashboard: embedded web UI
//   - config: YAML configuration for the boardlink binary
package boardlink
