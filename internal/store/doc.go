// Package store keeps the latest state of every polled component and
// publishes changes to subscribers.
//
// This package is internal to boardlink. The dispatch worker writes a
// [Record] each time a component's response is applied; the HTTP server reads
// snapshots for the REST API and subscribes for the SSE stream.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Record]: Storage representation of a component's state
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the system).
package store
