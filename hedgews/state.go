package hedgews

import (
	"sync"
	"sync/atomic"
)

// ConnectionState identifies one phase of the client lifecycle. The
// numeric values are stable so hosts can consume GetConnectionState
// as a plain integer.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

// String returns a human-readable state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// stateVar holds the current ConnectionState and lets waiters block
// until the next transition. Store closes the broadcast channel and
// replaces it, so any goroutine holding the old channel wakes up.
type stateVar struct {
	v  atomic.Int32
	mu sync.Mutex
	ch chan struct{}
}

func newStateVar() *stateVar {
	return &stateVar{ch: make(chan struct{})}
}

func (s *stateVar) Load() ConnectionState {
	return ConnectionState(s.v.Load())
}

func (s *stateVar) Store(st ConnectionState) {
	s.mu.Lock()
	s.v.Store(int32(st))
	close(s.ch)
	s.ch = make(chan struct{})
	s.mu.Unlock()
}

// changed returns a channel closed at the next transition. Callers
// must grab the channel before reading the state they key off, or a
// transition between the two reads can be missed.
func (s *stateVar) changed() <-chan struct{} {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	return ch
}
