// Package session wires the cache, the API client, the price chart and the
// ship helpers into one object built once per process.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/colthorp/spacetraders-cache-go/internal/api"
	"github.com/colthorp/spacetraders-cache-go/internal/cache"
	"github.com/colthorp/spacetraders-cache-go/internal/core"
	"github.com/colthorp/spacetraders-cache-go/internal/market"
	"github.com/colthorp/spacetraders-cache-go/internal/ship"
)

// Options overrides the collaborators a Session would otherwise build from
// its Config. Zero values mean "build the default".
type Options struct {
	Transport api.Transport
	Backend   cache.Backend
	Clock     core.Clock
	Sleeper   cache.Sleeper
}

// Session is the entry point for every cache-backed operation.
type Session struct {
	ID string

	cfg         *core.Config
	log         zerolog.Logger
	now         core.Clock
	api         *api.SpaceTraders
	manager     *cache.Manager
	syncer      *cache.Syncer
	chart       *market.Chart
	gate        *ship.Gate
	surveys     *ship.SurveyBook
	collections map[string]cache.Collection
}

// New builds a session from cfg and restores the persisted price chart.
func New(cfg *core.Config, log zerolog.Logger, opts Options) (*Session, error) {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}

	backend := opts.Backend
	if backend == nil {
		codec, err := cache.CodecByName(cfg.Codec)
		if err != nil {
			return nil, err
		}
		backend = cache.NewFilesystemBackend(cfg.CacheDir, codec)
	}

	transport := opts.Transport
	if transport == nil {
		transport = api.NewClient(cfg.BaseURL, cfg.Token, cfg.RequestTimeout, log)
	}

	now := opts.Clock
	if now == nil {
		now = core.SystemClock
	}

	id := uuid.NewString()
	log = log.With().Str("session", id).Logger()

	manager := cache.NewManager(backend, log)
	syncer := cache.NewSyncer(manager, cfg.PageDelay, log)
	if opts.Sleeper != nil {
		syncer.WithSleeper(opts.Sleeper)
	}

	s := &Session{
		ID:          id,
		cfg:         cfg,
		log:         log,
		now:         now,
		api:         api.NewSpaceTraders(transport, cfg.PageLimit),
		manager:     manager,
		syncer:      syncer,
		chart:       market.NewChart(manager, cfg.ChartDepth, log),
		gate:        ship.NewGate(now, cfg.PrimeCooldowns, log),
		surveys:     ship.NewSurveyBook(manager, now, log),
		collections: cache.Catalog(cfg.Callsign, cfg.ShardPrefixLen),
	}

	if err := s.chart.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Manager returns the cache manager.
func (s *Session) Manager() *cache.Manager {
	return s.manager
}

// Collection returns the named collection.
func (s *Session) Collection(name string) (cache.Collection, error) {
	coll, ok := s.collections[name]
	if !ok {
		return cache.Collection{}, fmt.Errorf("unknown collection %q (known: %s)", name, strings.Join(s.CollectionNames(), ", "))
	}
	return coll, nil
}

// CollectionNames lists the known collections, sorted.
func (s *Session) CollectionNames() []string {
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the record for key, fetching it on a cache miss.
func (s *Session) Get(ctx context.Context, collection, key string) (cache.Record, error) {
	coll, err := s.Collection(collection)
	if err != nil {
		return nil, err
	}
	return s.manager.FetchOrPopulate(ctx, coll.ShardID(key), key, s.fetchFunc(collection))
}

// Refresh fetches key even when cached and merges the fresh record.
func (s *Session) Refresh(ctx context.Context, collection, key string) (cache.Record, error) {
	coll, err := s.Collection(collection)
	if err != nil {
		return nil, err
	}
	return s.manager.Refresh(ctx, coll.ShardID(key), key, s.fetchFunc(collection))
}

// fetchFunc fetches one record of collection. Market records are simplified
// and fed to the price chart on the way in.
func (s *Session) fetchFunc(collection string) cache.FetchFunc {
	return func(ctx context.Context, key string) (cache.Record, error) {
		rec, err := s.api.GetRecord(ctx, collection, key)
		if err != nil || rec == nil {
			return rec, err
		}
		if collection == cache.Markets {
			rec = market.Simplify(rec)
			s.observeMarket(rec)
		}
		return rec, nil
	}
}

func (s *Session) observeMarket(rec cache.Record) {
	if _, err := s.chart.RecordMarket(rec); err != nil {
		s.log.Warn().Err(err).Str("market", core.StringField(rec, "symbol")).Msg("price chart update failed")
	}
}

// RefreshAll pages through the collection listing into the cache, starting
// at startPage. On failure the returned *cache.PaginationError names the
// page to resume from.
func (s *Session) RefreshAll(ctx context.Context, collection string, startPage int) (cache.SyncResult, error) {
	coll, err := s.Collection(collection)
	if err != nil {
		return cache.SyncResult{}, err
	}
	if !s.api.Listable(collection) {
		return cache.SyncResult{}, fmt.Errorf("%s: %w", collection, api.ErrNotListable)
	}

	fetch := func(ctx context.Context, page int) ([]cache.Record, error) {
		items, err := s.api.ListPage(ctx, collection, page)
		if err != nil {
			return nil, err
		}
		records := make([]cache.Record, len(items))
		for i, item := range items {
			records[i] = item
		}
		return records, nil
	}

	s.log.Info().Str("collection", collection).Int("start_page", startPage).Msg("refreshing collection")
	return s.syncer.SyncAll(ctx, coll, fetch, startPage)
}

// List returns every cached record of a collection. An empty listable
// collection is refreshed once first.
func (s *Session) List(ctx context.Context, collection string) (cache.Shard, error) {
	if _, err := s.Collection(collection); err != nil {
		return nil, err
	}
	all, err := s.manager.LoadCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(all) > 0 || !s.api.Listable(collection) {
		return all, nil
	}

	if _, err := s.RefreshAll(ctx, collection, core.DefaultStartPage); err != nil {
		return nil, err
	}
	return s.manager.LoadCollection(ctx, collection)
}

// Count returns the number of cached records in a collection.
func (s *Session) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.Collection(collection); err != nil {
		return 0, err
	}
	return s.manager.CountKeys(ctx, collection)
}

// Invalidate deletes one shard of a collection. shard may be a shard name or
// any key that routes to it.
func (s *Session) Invalidate(collection, shard string) error {
	coll, err := s.Collection(collection)
	if err != nil {
		return err
	}
	return s.manager.Invalidate(coll.ShardID(shard))
}
