package cache

import "sync"

// Store serializes read-modify-write cycles per shard on top of a Backend.
// Different shards proceed in parallel.
type Store struct {
	backend Backend

	guard sync.Mutex
	locks map[ShardID]*sync.Mutex
}

// NewStore wraps backend with per-shard locking.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend, locks: make(map[ShardID]*sync.Mutex)}
}

func (s *Store) lock(id ShardID) *sync.Mutex {
	s.guard.Lock()
	defer s.guard.Unlock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	return mu
}

// Load reads a shard without taking its lock. Saves are atomic so a reader
// sees either the old or the new shard.
func (s *Store) Load(id ShardID) (Shard, error) {
	return s.backend.Load(id)
}

// Update loads the shard, lets fn mutate it, and saves the result while
// holding the shard lock. If fn returns an error nothing is saved. A corrupt
// shard is handed to fn as empty and loadErr reports the corruption.
func (s *Store) Update(id ShardID, fn func(Shard) error) (loadErr error, err error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	shard, loadErr := s.backend.Load(id)
	if loadErr != nil && !isCorrupt(loadErr) {
		return nil, loadErr
	}
	if shard == nil {
		shard = make(Shard)
	}
	if err := fn(shard); err != nil {
		return loadErr, err
	}
	return loadErr, s.backend.Save(id, shard)
}

// Delete removes the shard under its lock.
func (s *Store) Delete(id ShardID) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()
	return s.backend.Delete(id)
}

// List forwards to the backend.
func (s *Store) List(collection string) ([]ShardID, error) {
	return s.backend.List(collection)
}
