// Package buffer provides a bounded history buffer for session output.
package buffer

import "sync"

// RingBuffer keeps the most recent bytes written to it, up to a fixed
// capacity. Oldest data is discarded when the capacity is exceeded.
//
// The pool uses one per session to cache raw agent output so reconnecting
// clients can be resynchronized without replaying the whole transcript.
type RingBuffer struct {
	mu   sync.RWMutex
	buf  []byte
	head int // index of the oldest byte
	size int // number of valid bytes
}

// NewRingBuffer creates a RingBuffer with the given capacity.
// A non-positive capacity is treated as 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Write appends p, discarding the oldest data on overflow.
// It never fails; the error is always nil (io.Writer compliance).
func (rb *RingBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	capacity := len(rb.buf)
	if len(p) >= capacity {
		copy(rb.buf, p[len(p)-capacity:])
		rb.head = 0
		rb.size = capacity
		return len(p), nil
	}

	tail := (rb.head + rb.size) % capacity
	n := copy(rb.buf[tail:], p)
	copy(rb.buf, p[n:])

	rb.size += len(p)
	if rb.size > capacity {
		rb.head = (rb.head + rb.size - capacity) % capacity
		rb.size = capacity
	}
	return len(p), nil
}

// Bytes returns a copy of the buffered data in write order.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		return nil
	}
	out := make([]byte, rb.size)
	n := copy(out, rb.buf[rb.head:min(rb.head+rb.size, len(rb.buf))])
	copy(out[n:], rb.buf[:rb.size-n])
	return out
}

// Reset discards all buffered data.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.head = 0
	rb.size = 0
}

// Len returns the number of buffered bytes.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// Cap returns the buffer capacity.
func (rb *RingBuffer) Cap() int {
	return len(rb.buf)
}
