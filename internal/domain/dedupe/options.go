// Package dedupe tracks idempotency keys for request submission.
package dedupe

// Option applies a configuration option to the in-memory cache.
type Option func(*inMemoryDeduper)

// WithMaxSize sets the maximum number of keys to keep in memory.
// If maxSize > 0: bounded mode, the oldest key is evicted first.
// If maxSize <= 0: unbounded mode (no eviction, no size limit).
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}
