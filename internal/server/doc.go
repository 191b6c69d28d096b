// Package server provides the HTTP server for the monitor broadcast.
//
// Endpoints:
//
//   - WebSocket stream at the configured path (default "/ws/monitors")
//   - Server-Sent Events fallback at "/api/sse", carrying the same frames
//   - REST snapshot at "/api/status"
//   - Store health at "/healthz" and Prometheus metrics at "/metrics"
//
// Each streaming connection is wrapped in a transport and served by one
// [session.Session]. The server supports graceful shutdown via context
// cancellation, with a 5-second timeout for in-flight requests.
//
// The server is started automatically by [monitorfeed.Feed.Start].
package server
