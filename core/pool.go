package core

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// bufferPool is a mutex-protected stack of reusable buffers. Unlike sync.Pool its
// contents survive garbage collection, which keeps codec scratch space warm for
// the whole duration of a rewrite pass.
type bufferPool struct {
	mu       sync.Mutex
	items    []*bytes.Buffer
	capacity int

	// Metrics
	hits        atomic.Uint64 // Number of times a buffer was successfully retrieved from the pool.
	misses      atomic.Uint64 // Number of times a buffer was requested but the pool was empty.
	created     atomic.Uint64 // Total number of new buffers created.
	currentSize atomic.Int64  // Current number of items in the pool.
}

// DefaultRecordBufferSize is the initial capacity of pooled record buffers.
const DefaultRecordBufferSize = 32 * 1024 // 32 KiB

// defaultPoolWarmup is the number of buffers created up front.
const defaultPoolWarmup = 16

var BufferPool = NewBufferPool(DefaultRecordBufferSize, defaultPoolWarmup)

// NewBufferPool creates a new buffer pool whose buffers start with the given
// capacity. warmup buffers are created eagerly.
func NewBufferPool(capacity, warmup int) *bufferPool {
	if capacity < 0 {
		capacity = 0
	}
	if warmup < 0 {
		warmup = 0
	}
	bp := &bufferPool{
		items:    make([]*bytes.Buffer, 0, warmup),
		capacity: capacity,
	}
	for i := 0; i < warmup; i++ {
		bp.items = append(bp.items, bp.newBuffer())
	}
	bp.currentSize.Store(int64(warmup))
	return bp
}

func (bp *bufferPool) newBuffer() *bytes.Buffer {
	bp.created.Add(1)
	return bytes.NewBuffer(make([]byte, 0, bp.capacity))
}

// Get retrieves a buffer from the pool. If the pool is empty, it creates a new one.
func (bp *bufferPool) Get() *bytes.Buffer {
	bp.mu.Lock()
	if len(bp.items) == 0 {
		bp.mu.Unlock()
		bp.misses.Add(1)
		return bp.newBuffer()
	}
	bp.hits.Add(1)
	bp.currentSize.Add(-1)
	item := bp.items[len(bp.items)-1]
	bp.items = bp.items[:len(bp.items)-1]
	bp.mu.Unlock()
	return item
}

// GetMetrics returns the current metrics for the pool.
func (bp *bufferPool) GetMetrics() (hits, misses, created uint64, currentSize int64) {
	return bp.hits.Load(), bp.misses.Load(), bp.created.Load(), bp.currentSize.Load()
}

// Put returns a buffer to the pool after resetting it.
func (bp *bufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	buf.Reset()
	bp.mu.Lock()
	bp.items = append(bp.items, buf)
	bp.currentSize.Add(1)
	bp.mu.Unlock()
}
