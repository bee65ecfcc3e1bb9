// Package dedupe tracks idempotency keys for request submission.
package dedupe

import (
	"context"
	"sync"
)

// Deduper maps client idempotency keys to the request id they created.
type Deduper interface {
	// Lookup returns the request id remembered for key.
	Lookup(ctx context.Context, key string) (uint64, bool)

	// Remember binds key to id. An existing binding is kept; the returned id
	// is the one now bound to key.
	Remember(ctx context.Context, key string, id uint64) uint64

	Size() int64
}

// node is one key in insertion order.
type node struct {
	key  string
	next *node
}

func (n *node) reset() {
	n.key = ""
	n.next = nil
}

// inMemoryDeduper keeps keys in a FIFO list so the oldest binding is evicted
// first once maxSize is reached. Every key in seen has exactly one node.
type inMemoryDeduper struct {
	mu       sync.Mutex
	seen     map[string]uint64
	head     *node // oldest
	tail     *node // newest
	maxSize  int
	nodePool sync.Pool
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	d.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}
	return d
}

func (d *inMemoryDeduper) Lookup(_ context.Context, key string) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.seen[key]
	return id, ok
}

func (d *inMemoryDeduper) Remember(_ context.Context, key string, id uint64) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.seen[key]; ok {
		return prev
	}

	if d.maxSize > 0 {
		for len(d.seen) >= d.maxSize && d.head != nil {
			d.evictOldest()
		}
	}

	n := d.nodePool.Get().(*node)
	n.key = key
	if d.tail == nil {
		d.head = n
	} else {
		d.tail.next = n
	}
	d.tail = n
	d.seen[key] = id
	return id
}

// evictOldest drops the oldest key. Must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	n := d.head
	d.head = n.next
	if d.head == nil {
		d.tail = nil
	}
	delete(d.seen, n.key)
	n.reset()
	d.nodePool.Put(n)
}

// Size returns the current number of remembered keys.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return int64(len(d.seen))
}
