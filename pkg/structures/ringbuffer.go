package structures

import (
	"sync"
)

// Ring keeps the most recent values up to a fixed capacity; pushing into
// a full ring overwrites the oldest entry.
type Ring[T any] struct {
	buffer []T
	size   uint64
	mask   uint64
	head   uint64 // index of the oldest entry
	count  uint64
	mu     sync.RWMutex
}

// NewRing creates a ring (size is rounded up to a power of 2)
func NewRing[T any](size uint64) *Ring[T] {
	if size == 0 {
		size = 1
	}
	if size&(size-1) != 0 {
		size = nextPowerOf2(size)
	}

	return &Ring[T]{
		buffer: make([]T, size),
		size:   size,
		mask:   size - 1,
	}
}

func nextPowerOf2(n uint64) uint64 {
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}

// Push appends item, evicting the oldest entry when full
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == r.size {
		r.buffer[r.head&r.mask] = item
		r.head++
		return
	}
	r.buffer[(r.head+r.count)&r.mask] = item
	r.count++
}

// Snapshot returns the entries oldest first
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, r.count)
	for i := uint64(0); i < r.count; i++ {
		out = append(out, r.buffer[(r.head+i)&r.mask])
	}
	return out
}

// Len returns the current number of items in the ring
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(r.count)
}

// Cap returns the capacity of the ring
func (r *Ring[T]) Cap() int {
	return int(r.size)
}
