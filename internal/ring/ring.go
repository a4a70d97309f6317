// Package ring implements a fixed-capacity lock-free ring buffer for
// single-producer/single-consumer use.
//
// The buffer sits between a connection's reader goroutine (producer) and
// the host's poll path (consumer). Push never blocks and never evicts:
// when the ring is full the new item is rejected and the caller decides
// what to record. Callers that need more than one producer or consumer
// must add their own serialization; the ring itself does not support it.
package ring

import (
	"sync/atomic"
)

// Ring is a fixed-capacity FIFO buffer safe for exactly one producer
// goroutine calling Push and one consumer goroutine calling Pop.
// head is advanced only by the consumer, tail only by the producer;
// both are free-running and wrap by modulo.
type Ring[T any] struct {
	buf  []T
	head atomic.Uint64 // next slot to read, owned by the consumer
	tail atomic.Uint64 // next slot to write, owned by the producer
}

// New creates a ring holding up to capacity items.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf: make([]T, capacity),
	}
}

// Push appends an item. Returns false if the ring is full; the item is
// then dropped and existing entries are left untouched. Never blocks.
func (r *Ring[T]) Push(item T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() >= uint64(len(r.buf)) {
		return false
	}
	r.buf[tail%uint64(len(r.buf))] = item
	r.tail.Store(tail + 1)
	return true
}

// Pop removes and returns the oldest item. Returns false if the ring is
// empty. Never blocks.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}
	idx := head % uint64(len(r.buf))
	item := r.buf[idx]
	r.buf[idx] = zero // Clear reference for GC
	r.head.Store(head + 1)
	return item, true
}

// Len returns the current number of buffered items. The value is
// approximate when read concurrently with Push or Pop.
func (r *Ring[T]) Len() int {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail < head {
		return 0
	}
	n := tail - head
	if n > uint64(len(r.buf)) {
		n = uint64(len(r.buf))
	}
	return int(n)
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}
