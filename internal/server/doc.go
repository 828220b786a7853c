// Package server provides the HTTP server for the boardlink dashboard and API.
//
// This package is internal to boardlink and handles all HTTP concerns:
//
//   - Dashboard serving: the embedded HTML page at "/"
//   - REST API: component records at "/api/components"
//   - Server-Sent Events: real-time record changes at "/api/sse"
//   - Control: manual refresh, enable/disable, interval changes and raw
//     commands, all routed through the dispatch queue
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
