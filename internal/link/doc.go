// Package link implements the physical command/response channel to the
// robot's sensor and actuator boards.
//
// This package is internal to boardlink. A [Link] performs one ASCII
// command/response exchange at a time; it knows line terminators and
// nothing else about the wire. Byte framing, checksums and wire-level
// retries are the board firmware's business.
//
// The main components are:
//
//   - [LineLink]: terminator-framed exchange over any io.ReadWriteCloser
//   - [OpenSerial]: a [LineLink] over a local serial port
//   - [DialTCP]: a [LineLink] over a TCP serial bridge
//   - [PortOptions]: serial line parameters
//   - [ExchangeFunc]: adapter for simulations and tests
//
// A [Link] is meant to have exactly one caller, the dispatch worker.
package link
