// Package dispatch serialises command/response exchanges onto a single
// shared hardware channel.
//
// This package is internal to boardlink. It owns the only code path that is
// allowed to talk to the physical link, so that no two exchanges ever
// overlap on the wire.
//
// The main components are:
//
//   - [Job]: a command generator paired with its response handler
//   - [Queue]: a two-level priority queue of pending jobs
//   - [Ticket]: one queued entry, with a completion signal
//   - [Worker]: the single consumer that runs each ticket against an [Exchanger]
//
// Producers (polling timers, manual refreshes, actuator writes) call
// [Queue.Enqueue] or [Queue.EnqueueAndWait] from any goroutine. The worker
// pops [High] entries before [Low] entries and preserves arrival order within
// a level.
package dispatch
