package image

import "sync"

// Pool is a thread-safe pool for reusing scratch Pixels buffers.
//
// Pool groups buffers by their dimensions so that filters running over the
// same output size reuse their intermediates instead of allocating per call.
//
// Thread safety: All methods are safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	buckets map[poolKey][]*Pixels
	maxSize int // max buffers per bucket
}

type poolKey struct {
	width  int
	height int
}

// NewPool creates a pool retaining at most maxPerBucket buffers per size.
// A maxPerBucket of 0 or less means unlimited.
func NewPool(maxPerBucket int) *Pool {
	return &Pool{
		buckets: make(map[poolKey][]*Pixels),
		maxSize: maxPerBucket,
	}
}

// Get returns a zeroed buffer of the given size, reusing one when available.
func (p *Pool) Get(width, height int) (*Pixels, error) {
	key := poolKey{width: width, height: height}

	p.mu.Lock()
	bucket := p.buckets[key]
	if n := len(bucket); n > 0 {
		buf := bucket[n-1]
		p.buckets[key] = bucket[:n-1]
		p.mu.Unlock()

		clear(buf.Pix)
		return buf, nil
	}
	p.mu.Unlock()

	return NewPixels(width, height)
}

// Put returns buf to the pool. A nil buffer or a full bucket discards it.
func (p *Pool) Put(buf *Pixels) {
	if buf == nil {
		return
	}
	key := poolKey{width: buf.Width, height: buf.Height}

	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buckets[key]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return
	}
	p.buckets[key] = append(bucket, buf)
}

// Len returns the number of buffers currently pooled for the given size.
func (p *Pool) Len(width, height int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets[poolKey{width: width, height: height}])
}

var defaultPool = NewPool(8)

// GetFromDefault retrieves a buffer from the package-level pool.
func GetFromDefault(width, height int) (*Pixels, error) {
	return defaultPool.Get(width, height)
}

// PutToDefault returns a buffer to the package-level pool.
func PutToDefault(buf *Pixels) {
	defaultPool.Put(buf)
}
