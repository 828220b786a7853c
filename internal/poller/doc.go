// Package poller implements the per-component polling policy for boardlink.
//
// This package is internal to boardlink. Each hardware component that reports
// a value owns one [Poller]. The poller keeps the component's enabled flag
// and refresh interval, arms a timer while enabled, and submits the
// component's job to the shared dispatch queue at low priority whenever the
// timer fires. [Poller.Update] refreshes on demand at high priority and
// blocks until the fresh value has been applied.
//
// The main components are:
//
//   - [Poller]: timer state machine for one component
//   - [Policy]: fixed-delay or fixed-rate re-arming
//   - [State]: Disabled, Armed or Pending
//   - [Submitter]: the queue interface the poller submits to
//
// Users of the boardlink library should not need to interact with this
// package directly. Components are configured through the main package.
package poller
