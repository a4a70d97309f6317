// Package stats maintains the observability counters for a connection:
// message totals, drop count, reconnect attempts, connection start time,
// and the most recent error.
//
// All fields are atomics, so reads never block and are safe from any
// goroutine. The last-error slot is last-write-wins diagnostic data:
// concurrent writers race and the newest value survives, which is
// acceptable because nothing makes control decisions from it.
package stats

import (
	"sync/atomic"
	"time"
)

// Registry holds the counters for one connection. The zero value is
// ready to use.
type Registry struct {
	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
	attempts atomic.Int64

	connectedAt atomic.Int64 // unix nanos, 0 while not connected

	lastError atomic.Pointer[string]
}

// AddSent increments the sent-message counter.
func (r *Registry) AddSent() {
	r.sent.Add(1)
}

// AddReceived increments the received-message counter.
func (r *Registry) AddReceived() {
	r.received.Add(1)
}

// AddDropped increments the overflow-drop counter.
func (r *Registry) AddDropped() {
	r.dropped.Add(1)
}

// Sent returns the number of messages sent this session.
func (r *Registry) Sent() uint64 {
	return r.sent.Load()
}

// Received returns the number of messages buffered this session.
func (r *Registry) Received() uint64 {
	return r.received.Load()
}

// Dropped returns the number of messages rejected by a full buffer.
func (r *Registry) Dropped() uint64 {
	return r.dropped.Load()
}

// Attempts returns the current reconnect attempt count.
func (r *Registry) Attempts() int {
	return int(r.attempts.Load())
}

// SetAttempts overwrites the reconnect attempt count.
func (r *Registry) SetAttempts(n int) {
	r.attempts.Store(int64(n))
}

// MarkConnected stamps the connection start time.
func (r *Registry) MarkConnected(t time.Time) {
	r.connectedAt.Store(t.UnixNano())
}

// MarkDisconnected clears the connection start time.
func (r *Registry) MarkDisconnected() {
	r.connectedAt.Store(0)
}

// ConnectedFor returns how long the connection has been up as of now,
// or zero if not connected.
func (r *Registry) ConnectedFor(now time.Time) time.Duration {
	at := r.connectedAt.Load()
	if at == 0 {
		return 0
	}
	d := now.Sub(time.Unix(0, at))
	if d < 0 {
		return 0
	}
	return d
}

// SetLastError records an error description, replacing any previous one.
func (r *Registry) SetLastError(msg string) {
	r.lastError.Store(&msg)
}

// ClearLastError discards the recorded error.
func (r *Registry) ClearLastError() {
	r.lastError.Store(nil)
}

// LastError returns the most recently recorded error description, or ""
// if none.
func (r *Registry) LastError() string {
	if p := r.lastError.Load(); p != nil {
		return *p
	}
	return ""
}

// Reset returns every counter to its initial state.
func (r *Registry) Reset() {
	r.sent.Store(0)
	r.received.Store(0)
	r.dropped.Store(0)
	r.attempts.Store(0)
	r.connectedAt.Store(0)
	r.lastError.Store(nil)
}
