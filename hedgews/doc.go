// Package hedgews implements the always-reconnecting WebSocket client
// that links a trading terminal to the hedge system server.
//
// The client:
//   - Maintains a single connection with a five-state lifecycle
//     (disconnected, connecting, connected, reconnecting, failed)
//   - Buffers inbound messages in a fixed-capacity ring drained by
//     non-blocking Receive calls
//   - Probes liveness with transport pings and escalates stale links
//   - Recovers from failures with capped exponential backoff
//   - Tracks message/attempt counters readable from any goroutine
//
// Hosts that cannot hold a handle use the package-level functions
// (Connect, SendMessage, ReceiveMessage, ...), which drive one shared
// client and report failures as booleans plus GetLastError.
package hedgews
