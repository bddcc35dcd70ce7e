package utils

import "sync"

// -----------------------------------------------------------------------------
// RingBuffer is a fixed-size circular buffer.
// True ring buffer - no resizing allowed!
// -----------------------------------------------------------------------------

type RingBuffer[T any] struct {
	mu       sync.RWMutex
	data     []T
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewRingBuffer creates a new buffer with fixed capacity
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 100 // Default reasonable size
	}

	return &RingBuffer[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Append adds one item, overwriting the oldest once full
func (rb *RingBuffer[T]) Append(item T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.data[rb.index] = item
	rb.index = (rb.index + 1) % rb.capacity

	// Update size (never exceeds capacity)
	if rb.size < rb.capacity {
		rb.size++
	}
}

// -----------------------------------------------------------------------------

// GetLatest returns up to n latest items, oldest first
func (rb *RingBuffer[T]) GetLatest(n int) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 || n <= 0 {
		return []T{}
	}

	count := n
	if n > rb.size {
		count = rb.size
	}

	result := make([]T, count)

	// Latest data is at index-1
	startIdx := (rb.index - count + rb.capacity) % rb.capacity
	for i := 0; i < count; i++ {
		result[i] = rb.data[(startIdx+i)%rb.capacity]
	}

	return result
}

// -----------------------------------------------------------------------------

// Len returns the current number of elements
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}
