package journal

import (
	"sort"
	"sync"
	"time"
)

type record interface {
	Observation | Report
	recordID() string
	recordTime() time.Time
	recordStatus() Status
}

// Collection is an ordered, concurrency-safe list of records, newest first.
// Records are only ever inserted at the front and mutated by id, so
// overlapping requests touch disjoint entries.
type Collection[T record] struct {
	mu    sync.Mutex
	items []T

	// syncMu serializes snapshot-and-save so that a later save always
	// carries the later state.
	syncMu sync.Mutex
}

// Load replaces the contents, sorted by timestamp descending.
func (c *Collection[T]) Load(items []T) {
	sorted := append([]T(nil), items...)
	sortDesc(sorted)
	c.mu.Lock()
	c.items = sorted
	c.mu.Unlock()
}

// Prepend inserts v at the front.
func (c *Collection[T]) Prepend(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]T{v}, c.items...)
}

// Resolve applies fn to the record with the given id. It returns false
// if the record no longer exists.
func (c *Collection[T]) Resolve(id string, fn func(*T)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].recordID() == id {
			fn(&c.items[i])
			return true
		}
	}
	return false
}

// Remove deletes the record with the given id.
func (c *Collection[T]) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].recordID() == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the record with the given id.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.items {
		if v.recordID() == id {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Clear empties the collection.
func (c *Collection[T]) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

// Snapshot returns a copy of all records in display order.
func (c *Collection[T]) Snapshot() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	sortDesc(out)
	return out
}

// Terminal returns a copy of the records that are no longer pending.
func (c *Collection[T]) Terminal() []T {
	snap := c.Snapshot()
	out := snap[:0]
	for _, v := range snap {
		if v.recordStatus().Terminal() {
			out = append(out, v)
		}
	}
	return out
}

// Len returns the number of records.
func (c *Collection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Pending returns the number of records still awaiting a result.
func (c *Collection[T]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.items {
		if v.recordStatus() == StatusPending {
			n++
		}
	}
	return n
}

// Sync hands the terminal records to save. Calls are serialized.
func (c *Collection[T]) Sync(save func([]T) error) error {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	return save(c.Terminal())
}

// Reset empties the collection and then runs wipe, both under the sync
// lock. A Sync queued behind it saves the empty state.
func (c *Collection[T]) Reset(wipe func() error) error {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	c.Clear()
	if wipe == nil {
		return nil
	}
	return wipe()
}

func sortDesc[T record](items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].recordTime().After(items[j].recordTime())
	})
}
