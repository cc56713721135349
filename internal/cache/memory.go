package cache

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryBackend is an in-memory shard backend for testing.
type MemoryBackend struct {
	shards  map[ShardID]Shard
	corrupt map[ShardID]bool
	saves   int
	mu      sync.RWMutex
}

// NewMemoryBackend creates a new in-memory shard backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		shards:  make(map[ShardID]Shard),
		corrupt: make(map[ShardID]bool),
	}
}

// Path returns a dummy path for the given shard.
func (b *MemoryBackend) Path(id ShardID) string {
	return "mem://" + id.String()
}

// Load returns a copy of the stored shard or an empty shard if absent.
func (b *MemoryBackend) Load(id ShardID) (Shard, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.corrupt[id] {
		return make(Shard), fmt.Errorf("cache: decode %s: %w", b.Path(id), ErrCorruptShard)
	}
	if shard, ok := b.shards[id]; ok {
		return cloneShard(shard), nil
	}
	return make(Shard), nil
}

// Save stores a copy of the shard.
func (b *MemoryBackend) Save(id ShardID, shard Shard) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.shards[id] = cloneShard(shard)
	delete(b.corrupt, id)
	b.saves++
	return nil
}

// Delete removes the shard.
func (b *MemoryBackend) Delete(id ShardID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.shards, id)
	delete(b.corrupt, id)
	return nil
}

// List returns the shards stored for a collection, sorted by name.
func (b *MemoryBackend) List(collection string) ([]ShardID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]ShardID, 0)
	for id := range b.shards {
		if id.Collection == collection {
			ids = append(ids, id)
		}
	}
	for id := range b.corrupt {
		if _, ok := b.shards[id]; !ok && id.Collection == collection {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Name < ids[j].Name })
	return ids, nil
}

// Saves returns how many times Save was called (for testing).
func (b *MemoryBackend) Saves() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.saves
}

// Seed stores a shard directly (for testing).
func (b *MemoryBackend) Seed(id ShardID, shard Shard) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shards[id] = cloneShard(shard)
}

// MarkCorrupt makes the next loads of id fail as undecodable (for testing).
func (b *MemoryBackend) MarkCorrupt(id ShardID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.shards, id)
	b.corrupt[id] = true
}

// Reset clears all shards (for testing).
func (b *MemoryBackend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shards = make(map[ShardID]Shard)
	b.corrupt = make(map[ShardID]bool)
	b.saves = 0
}
