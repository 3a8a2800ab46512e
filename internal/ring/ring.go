// Package ring provides a bounded FIFO buffer: pushing past capacity evicts
// the oldest element.
package ring

import "sync"

// Buffer is a fixed-capacity FIFO safe for concurrent use.
type Buffer[T any] struct {
	mu    sync.RWMutex
	items []T
	start int
	size  int
}

// New creates a buffer holding at most capacity elements.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full.
func (b *Buffer[T]) Push(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	end := (b.start + b.size) % len(b.items)
	b.items[end] = v
	if b.size < len(b.items) {
		b.size++
		return
	}
	b.start = (b.start + 1) % len(b.items)
}

// Items returns a copy of the contents, oldest first.
func (b *Buffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.start+i)%len(b.items)]
	}
	return out
}

// Last returns the newest element.
func (b *Buffer[T]) Last() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.items[(b.start+b.size-1)%len(b.items)], true
}

// Len returns the number of stored elements.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Reset drops all elements.
func (b *Buffer[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.start, b.size = 0, 0
}
