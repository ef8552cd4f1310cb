// Package structures holds small allocation-free data structures reused
// across the hot paths of replication and geolocation: a ring buffer
// for the recent-activity log, a size-class slice pool for multipart
// chunk buffers, and a bounded compact map for the geolocation cache.
package structures

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrBufferFull  = errors.New("structures: ring buffer is full")
	ErrBufferEmpty = errors.New("structures: ring buffer is empty")
)

// RingBuffer is a fixed-capacity, lock-free single-producer/single-consumer
// style queue. Capacity is always rounded up to a power of two.
type RingBuffer struct {
	buffer []interface{}
	size   uint64
	mask   uint64
	head   atomic.Uint64
	tail   atomic.Uint64
}

// NewRingBuffer creates a ring buffer with at least the requested number
// of slots. One slot always stays empty to tell a full buffer from an
// empty one, so it holds at most Cap()-1 items.
func NewRingBuffer(size uint64) *RingBuffer {
	if size&(size-1) != 0 {
		size = nextPowerOf2(size)
	}
	return &RingBuffer{buffer: make([]interface{}, size), size: size, mask: size - 1}
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

// Push adds an item, overwriting the oldest entry once the buffer is full.
// Unlike a strict queue, the replication activity log prefers dropping the
// oldest event to rejecting the newest one.
func (rb *RingBuffer) Push(item interface{}) error {
	for {
		head := rb.head.Load()
		tail := rb.tail.Load()

		if (tail+1)&rb.mask == head&rb.mask {
			// Full: drop the oldest entry to make room instead of erroring,
			// since callers log activity, not transactional work.
			rb.head.CompareAndSwap(head, head+1)
			continue
		}

		if rb.tail.CompareAndSwap(tail, tail+1) {
			rb.buffer[tail&rb.mask] = item
			return nil
		}
	}
}

// Pop removes and returns the oldest item.
func (rb *RingBuffer) Pop() (interface{}, error) {
	for {
		head := rb.head.Load()
		tail := rb.tail.Load()

		if head == tail {
			return nil, ErrBufferEmpty
		}

		item := rb.buffer[head&rb.mask]
		if rb.head.CompareAndSwap(head, head+1) {
			return item, nil
		}
	}
}

// Len returns the current number of buffered items.
func (rb *RingBuffer) Len() uint64 {
	head := rb.head.Load()
	tail := rb.tail.Load()
	return (tail - head) & rb.mask
}

// Cap returns the buffer's slot count, one more than the number of
// items it can hold.
func (rb *RingBuffer) Cap() uint64 {
	return rb.size
}

// Snapshot returns every buffered item, oldest first, without draining
// the buffer. Used by the debug activity endpoint, which must not
// consume events other callers may still want to see.
func (rb *RingBuffer) Snapshot() []interface{} {
	head := rb.head.Load()
	tail := rb.tail.Load()
	n := (tail - head) & rb.mask
	out := make([]interface{}, 0, n)
	for i := uint64(0); i < n; i++ {
		out = append(out, rb.buffer[(head+i)&rb.mask])
	}
	return out
}

// SlicePool reuses []byte buffers grouped by power-of-two capacity, so
// chunked multipart reads don't allocate a fresh buffer per part.
type SlicePool struct {
	pools map[int]*sync.Pool
	mu    sync.RWMutex
}

// NewSlicePool creates an empty SlicePool.
func NewSlicePool() *SlicePool {
	return &SlicePool{pools: make(map[int]*sync.Pool)}
}

// GetSlice returns a slice with length == capacity, backed by a
// power-of-two-sized pooled buffer.
func (sp *SlicePool) GetSlice(capacity int) []byte {
	size := int(nextPowerOf2(uint64(capacity)))

	sp.mu.RLock()
	pool, exists := sp.pools[size]
	sp.mu.RUnlock()

	if !exists {
		sp.mu.Lock()
		pool, exists = sp.pools[size]
		if !exists {
			pool = &sync.Pool{New: func() interface{} { return make([]byte, size) }}
			sp.pools[size] = pool
		}
		sp.mu.Unlock()
	}

	slice := pool.Get().([]byte)
	return slice[:capacity]
}

// PutSlice returns a slice to its size-class pool.
func (sp *SlicePool) PutSlice(slice []byte) {
	size := int(nextPowerOf2(uint64(cap(slice))))

	sp.mu.RLock()
	pool, exists := sp.pools[size]
	sp.mu.RUnlock()

	if exists {
		pool.Put(slice[:size])
	}
}

// CompactMap is a small bounded string-keyed cache with FIFO eviction,
// used for the geolocation lookup cache where an LRU would be overkill.
type CompactMap struct {
	mu    sync.RWMutex
	data  map[uint64]interface{}
	keys  []string
	limit int
}

// NewCompactMap creates a CompactMap holding at most limit entries.
func NewCompactMap(limit int) *CompactMap {
	return &CompactMap{data: make(map[uint64]interface{}), keys: make([]string, 0, limit), limit: limit}
}

// Set stores value under key, evicting the oldest entry if at capacity.
func (cm *CompactMap) Set(key string, value interface{}) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	hash := hashKey(key)

	if _, exists := cm.data[hash]; !exists && len(cm.data) >= cm.limit {
		if len(cm.keys) > 0 {
			oldHash := hashKey(cm.keys[0])
			delete(cm.data, oldHash)
			cm.keys = cm.keys[1:]
		}
	}

	cm.data[hash] = value
	cm.keys = append(cm.keys, key)
}

// Get retrieves the value stored under key.
func (cm *CompactMap) Get(key string) (interface{}, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	value, exists := cm.data[hashKey(key)]
	return value, exists
}

// Len returns the number of entries currently cached.
func (cm *CompactMap) Len() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.data)
}

func hashKey(s string) uint64 {
	h := uint64(5381)
	for i := 0; i < len(s); i++ {
		h = ((h << 5) + h) + uint64(s[i])
	}
	return h
}
