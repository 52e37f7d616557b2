// Package registry provides the sharded resource table a device uses to
// track the objects created from it.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	// ShardCount is the number of shards. Must be a power of 2.
	ShardCount = 16

	shardMask = ShardCount - 1
)

// Table maps opaque UUID handles to values.
//
// Entries are never evicted: a handle stays registered until Remove.
// Workers register and look up resources concurrently, so each shard has
// its own lock.
type Table[V any] struct {
	shards [ShardCount]tableShard[V]
	count  atomic.Int64
}

type tableShard[V any] struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]V
}

// New creates an empty table.
func New[V any]() *Table[V] {
	t := &Table[V]{}
	for i := range t.shards {
		t.shards[i].entries = make(map[uuid.UUID]V)
	}
	return t
}

// shard picks a shard from the random bits of a version 4 UUID.
func (t *Table[V]) shard(id uuid.UUID) *tableShard[V] {
	return &t.shards[id[15]&shardMask]
}

// Insert registers a fresh handle for v and returns it.
func (t *Table[V]) Insert(v V) uuid.UUID {
	for {
		id := uuid.New()
		s := t.shard(id)
		s.mu.Lock()
		if _, exists := s.entries[id]; exists {
			s.mu.Unlock()
			continue
		}
		s.entries[id] = v
		s.mu.Unlock()
		t.count.Add(1)
		return id
	}
}

// Get returns the value registered under id.
func (t *Table[V]) Get(id uuid.UUID) (V, bool) {
	s := t.shard(id)
	s.mu.RLock()
	v, ok := s.entries[id]
	s.mu.RUnlock()
	return v, ok
}

// Remove unregisters id and reports whether it was registered.
func (t *Table[V]) Remove(id uuid.UUID) bool {
	s := t.shard(id)
	s.mu.Lock()
	_, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if ok {
		t.count.Add(-1)
	}
	return ok
}

// Len returns the number of registered handles.
func (t *Table[V]) Len() int {
	return int(t.count.Load())
}

// Range calls fn for every entry until fn returns false.
// Entries added or removed during Range may or may not be visited.
func (t *Table[V]) Range(fn func(id uuid.UUID, v V) bool) {
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		snapshot := make([]struct {
			id uuid.UUID
			v  V
		}, 0, len(s.entries))
		for id, v := range s.entries {
			snapshot = append(snapshot, struct {
				id uuid.UUID
				v  V
			}{id, v})
		}
		s.mu.RUnlock()

		for _, e := range snapshot {
			if !fn(e.id, e.v) {
				return
			}
		}
	}
}
