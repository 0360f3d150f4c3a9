package eventing

import (
	"container/list"
	"sync"
)

// Deduplicator remembers message identity keys and reports first sightings.
// With a positive capacity the oldest key is forgotten once the set is full;
// capacity 0 keeps every key for the life of the process.
type Deduplicator struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]*list.Element
	order    *list.List
}

// NewDeduplicator constructs a Deduplicator. Negative capacities are treated
// as unbounded.
func NewDeduplicator(capacity int) *Deduplicator {
	if capacity < 0 {
		capacity = 0
	}
	return &Deduplicator{
		capacity: capacity,
		seen:     make(map[string]*list.Element),
		order:    list.New(),
	}
}

// IsNew returns true exactly once per key and marks the key as seen.
func (d *Deduplicator) IsNew(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return false
	}
	if d.capacity > 0 && d.order.Len() >= d.capacity {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.seen, oldest.Value.(string))
	}
	d.seen[key] = d.order.PushBack(key)
	return true
}

// Seen reports whether key was already marked, without marking it.
func (d *Deduplicator) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[key]
	return ok
}

// Len returns the number of remembered keys.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
