package elm327

import (
	"sync"
	"sync/atomic"
)

// BufferPool manages reusable read buffers for the reader goroutine.
type BufferPool struct {
	pool sync.Pool
	size int

	gets    atomic.Int64
	puts    atomic.Int64
	creates atomic.Int64

	service *Service // for hit/miss metrics, may be nil
}

// NewBufferPool creates a pool of fixed-size buffers.
func NewBufferPool(bufferSize int, service *Service) *BufferPool {
	bp := &BufferPool{
		size:    bufferSize,
		service: service,
	}
	bp.pool = sync.Pool{
		New: func() any {
			bp.creates.Add(1)
			return make([]byte, bufferSize)
		},
	}
	return bp
}

// Get retrieves a buffer from the pool.
func (bp *BufferPool) Get() []byte {
	bp.gets.Add(1)
	before := bp.creates.Load()
	buf := bp.pool.Get().([]byte)
	if bp.service != nil && bp.service.metrics != nil {
		if bp.creates.Load() != before {
			bp.service.metrics.BufferPoolMisses.Add(1)
		} else {
			bp.service.metrics.BufferPoolHits.Add(1)
		}
	}
	return buf
}

// Put clears buf and returns it to the pool.
func (bp *BufferPool) Put(buf []byte) {
	if len(buf) != bp.size {
		return
	}
	bp.puts.Add(1)

	clear(buf)
	bp.pool.Put(buf)
}

// Stats returns pool usage statistics.
func (bp *BufferPool) Stats() PoolStats {
	return PoolStats{
		Size:    bp.size,
		Gets:    bp.gets.Load(),
		Puts:    bp.puts.Load(),
		Creates: bp.creates.Load(),
	}
}

// PoolStats contains buffer pool usage statistics.
type PoolStats struct {
	Size    int
	Gets    int64
	Puts    int64
	Creates int64
}

// HitRatio returns the cache hit ratio (0.0 to 1.0).
func (ps PoolStats) HitRatio() float64 {
	if ps.Gets == 0 {
		return 0.0
	}
	return 1.0 - (float64(ps.Creates) / float64(ps.Gets))
}

// defaultReadPool serves ports built directly on a SerialPort (tests, mocks).
var defaultReadPool = NewBufferPool(256, nil)
