package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/colthorp/spacetraders-cache-go/internal/core"
	"github.com/colthorp/spacetraders-cache-go/internal/metrics"
)

// FetchFunc obtains a fresh record for key from the remote service.
type FetchFunc func(ctx context.Context, key string) (Record, error)

// Manager is the read-through cache over a sharded Backend.
//
// # Lookups
//
// FetchOrPopulate returns the cached record when its shard holds the key and
// otherwise calls the fetch function once, merges the result into the shard
// and returns it. The fetch runs outside the shard lock, so two callers that
// miss on the same key may both fetch; the second merge simply overwrites the
// first with an equally fresh record.
//
// # Writes
//
// MergeUpdate is a shallow dict merge: each key of the partial map replaces
// the stored record for that key wholesale. All writes go through the
// per-shard Store so concurrent merges into one shard are serialized.
//
// # Failures
//
// A failed fetch is returned unchanged and nothing is written. Corrupt shards
// read as empty and are logged; they are rewritten by the next merge.
type Manager struct {
	store   *Store
	backend Backend
	log     zerolog.Logger
	workers int
}

// NewManager creates a cache manager over backend.
// If backend is nil, uses the default FilesystemBackend.
func NewManager(backend Backend, log zerolog.Logger) *Manager {
	if backend == nil {
		backend = NewFilesystemBackend("", nil)
	}
	return &Manager{
		store:   NewStore(backend),
		backend: backend,
		log:     log.With().Str("component", "cache").Logger(),
		workers: core.LoadWorkers,
	}
}

// GetBackend returns the underlying backend.
func (m *Manager) GetBackend() Backend {
	return m.backend
}

// LoadShard returns the shard contents, degrading a corrupt shard to empty.
func (m *Manager) LoadShard(id ShardID) (Shard, error) {
	shard, err := m.store.Load(id)
	if err != nil {
		if isCorrupt(err) {
			m.reportCorrupt(id, err)
			return make(Shard), nil
		}
		return nil, err
	}
	return shard, nil
}

// Get returns the cached record for key without fetching.
func (m *Manager) Get(id ShardID, key string) (Record, bool, error) {
	shard, err := m.LoadShard(id)
	if err != nil {
		return nil, false, err
	}
	rec, ok := shard[key]
	return rec, ok, nil
}

// FetchOrPopulate returns the record for key, fetching and caching it on a miss.
func (m *Manager) FetchOrPopulate(ctx context.Context, id ShardID, key string, fetch FetchFunc) (Record, error) {
	rec, ok, err := m.Get(id, key)
	if err != nil {
		return nil, err
	}
	if ok {
		metrics.CacheLookups.WithLabelValues(id.Collection, "hit").Inc()
		m.log.Debug().Str("shard", id.String()).Str("key", key).Msg("cache hit")
		return rec, nil
	}

	metrics.CacheLookups.WithLabelValues(id.Collection, "miss").Inc()
	m.log.Debug().Str("shard", id.String()).Str("key", key).Msg("cache miss, fetching")

	return m.populate(ctx, id, key, fetch)
}

// Refresh fetches key unconditionally and merges the fresh record.
func (m *Manager) Refresh(ctx context.Context, id ShardID, key string, fetch FetchFunc) (Record, error) {
	return m.populate(ctx, id, key, fetch)
}

func (m *Manager) populate(ctx context.Context, id ShardID, key string, fetch FetchFunc) (Record, error) {
	rec, err := fetch(ctx, key)
	if err != nil {
		metrics.FetchErrors.WithLabelValues(id.Collection).Inc()
		return nil, err
	}
	if rec == nil {
		metrics.FetchErrors.WithLabelValues(id.Collection).Inc()
		return nil, fmt.Errorf("%s %q: %w", id.Collection, key, ErrEmptyFetch)
	}

	if err := m.MergeUpdate(id, Shard{key: rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

// MergeUpdate overlays partial onto the stored shard, replacing whole records.
func (m *Manager) MergeUpdate(id ShardID, partial Shard) error {
	if len(partial) == 0 {
		return nil
	}
	loadErr, err := m.store.Update(id, func(existing Shard) error {
		for k, rec := range partial {
			existing[k] = rec
		}
		return nil
	})
	if loadErr != nil {
		m.reportCorrupt(id, loadErr)
	}
	if err != nil {
		return fmt.Errorf("cache: merge %s: %w", id, err)
	}
	return nil
}

// Update runs fn against the shard under its lock and saves the result.
// Used by components that keep a structured value in a single shard.
func (m *Manager) Update(id ShardID, fn func(Shard) error) error {
	loadErr, err := m.store.Update(id, fn)
	if loadErr != nil {
		m.reportCorrupt(id, loadErr)
	}
	return err
}

// Invalidate deletes one shard.
func (m *Manager) Invalidate(id ShardID) error {
	m.log.Info().Str("shard", id.String()).Msg("invalidating shard")
	return m.store.Delete(id)
}

// LoadCollection merges every shard of a collection into one map.
// Shards are read concurrently; later shards win on duplicate keys.
func (m *Manager) LoadCollection(ctx context.Context, collection string) (Shard, error) {
	ids, err := m.store.List(collection)
	if err != nil {
		return nil, err
	}

	shards := make([]Shard, len(ids))
	errs := make([]error, len(ids))

	if len(ids) == 1 {
		shards[0], errs[0] = m.LoadShard(ids[0])
	} else {
		var wg sync.WaitGroup
		semaphore := make(chan struct{}, m.workers)

		for i, id := range ids {
			wg.Add(1)
			go func(i int, id ShardID) {
				defer wg.Done()
				semaphore <- struct{}{}
				defer func() { <-semaphore }()

				if ctx.Err() != nil {
					errs[i] = ctx.Err()
					return
				}
				shards[i], errs[i] = m.LoadShard(id)
			}(i, id)
		}
		wg.Wait()
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	all := make(Shard)
	for _, shard := range shards {
		for k, rec := range shard {
			all[k] = rec
		}
	}
	return all, nil
}

// CountKeys returns the number of records cached for a collection.
func (m *Manager) CountKeys(ctx context.Context, collection string) (int, error) {
	all, err := m.LoadCollection(ctx, collection)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (m *Manager) reportCorrupt(id ShardID, err error) {
	metrics.CorruptShards.WithLabelValues(id.Collection).Inc()
	m.log.Warn().Err(err).Str("shard", id.String()).Str("path", m.backend.Path(id)).
		Msg("corrupt shard treated as empty")
}

func isCorrupt(err error) bool {
	return errors.Is(err, ErrCorruptShard)
}
