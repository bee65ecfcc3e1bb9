// Package journal keeps the most recent ledger events in memory for
// GET /events.
package journal

import (
	"context"
	"sync"

	"github.com/okian/blindfold/internal/domain/model"
)

const defaultCapacity = 1024

// Journal is a bounded ring of events. It implements worker.Handler.
type Journal struct {
	mu   sync.RWMutex
	ring []model.Event
	next int
	full bool
}

// New creates a journal holding up to capacity events.
func New(capacity int) *Journal {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Journal{ring: make([]model.Event, capacity)}
}

// Handle records e, overwriting the oldest event when full.
func (j *Journal) Handle(_ context.Context, e model.Event) error { //nolint:gocritic // hugeParam
	j.mu.Lock()
	defer j.mu.Unlock()

	j.ring[j.next] = e
	j.next = (j.next + 1) % len(j.ring)
	if j.next == 0 {
		j.full = true
	}
	return nil
}

// Len returns the number of retained events.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.full {
		return len(j.ring)
	}
	return j.next
}

// Recent returns up to n events ordered by ledger height, oldest first.
// Workers may dispatch concurrently, so arrival order is not height order.
func (j *Journal) Recent(n int) []model.Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	size := j.next
	start := 0
	if j.full {
		size = len(j.ring)
		start = j.next
	}
	out := make([]model.Event, 0, size)
	for i := 0; i < size; i++ {
		out = append(out, j.ring[(start+i)%len(j.ring)])
	}
	sortByHeight(out)
	if n > 0 && n < len(out) {
		out = out[len(out)-n:]
	}
	return out
}

func sortByHeight(events []model.Event) {
	// insertion sort: the ring is nearly sorted already
	for i := 1; i < len(events); i++ {
		for k := i; k > 0 && events[k].Height < events[k-1].Height; k-- {
			events[k], events[k-1] = events[k-1], events[k]
		}
	}
}
