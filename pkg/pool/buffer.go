package pool

import (
	"sync"
)

// BufferPool hands out fixed-size chunk buffers and accounts for how many
// bytes are checked out at once. Peak is the high-water mark of that
// figure and is what bounded-memory checks look at.
type BufferPool struct {
	pool      sync.Pool
	size      int
	allocated int64
	peak      int64
	gets      int64
	mu        sync.Mutex
}

// NewBufferPool creates a pool of bufferSize buffers
func NewBufferPool(bufferSize int) *BufferPool {
	return &BufferPool{
		size: bufferSize,
		pool: sync.Pool{
			New: func() interface{} {
				b := make([]byte, bufferSize)
				return &b
			},
		},
	}
}

// Get retrieves a buffer from the pool
func (bp *BufferPool) Get() []byte {
	bp.mu.Lock()
	bp.gets++
	bp.allocated += int64(bp.size)
	if bp.allocated > bp.peak {
		bp.peak = bp.allocated
	}
	bp.mu.Unlock()

	buf := *(bp.pool.Get().(*[]byte))
	return buf[:bp.size]
}

// Put returns a buffer to the pool. Allocated is floored at zero.
func (bp *BufferPool) Put(buf []byte) {
	if buf == nil || cap(buf) != bp.size {
		return
	}

	bp.mu.Lock()
	if bp.allocated >= int64(bp.size) {
		bp.allocated -= int64(bp.size)
	}
	bp.mu.Unlock()

	buf = buf[:cap(buf)]
	bp.pool.Put(&buf)
}

// Size of each buffer
func (bp *BufferPool) Size() int {
	return bp.size
}

// BufferPoolStats is a point-in-time view of pool accounting
type BufferPoolStats struct {
	Size      int   `json:"size"`
	Allocated int64 `json:"allocated"`
	Peak      int64 `json:"peak"`
	Gets      int64 `json:"gets"`
}

func (bp *BufferPool) Stats() BufferPoolStats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return BufferPoolStats{
		Size:      bp.size,
		Allocated: bp.allocated,
		Peak:      bp.peak,
		Gets:      bp.gets,
	}
}

// ResetPeak starts a new high-water measurement from the current allocation
func (bp *BufferPool) ResetPeak() {
	bp.mu.Lock()
	bp.peak = bp.allocated
	bp.mu.Unlock()
}
