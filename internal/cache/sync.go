package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/colthorp/spacetraders-cache-go/internal/core"
	"github.com/colthorp/spacetraders-cache-go/internal/metrics"
)

// PageFunc returns one page of records. An empty page ends the listing.
type PageFunc func(ctx context.Context, page int) ([]Record, error)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SyncResult summarizes a completed sync.
type SyncResult struct {
	Pages    int `json:"pages"`
	Records  int `json:"records"`
	LastPage int `json:"last_page"`
	Skipped  int `json:"skipped"`
}

// PaginationError reports a sync that stopped on a failed page. Every page
// before Page has been merged.
type PaginationError struct {
	Collection        string
	Page              int
	LastCompletedPage int
	Err               error
}

func (e *PaginationError) Error() string {
	return fmt.Sprintf("sync %s aborted on page %d (last completed page %d): %v",
		e.Collection, e.Page, e.LastCompletedPage, e.Err)
}

func (e *PaginationError) Unwrap() error { return e.Err }

// ResumePage is the start page that continues the aborted sync.
func (e *PaginationError) ResumePage() int {
	return e.Page
}

// Syncer walks a paginated listing into the cache.
type Syncer struct {
	manager *Manager
	delay   time.Duration
	sleep   Sleeper
	log     zerolog.Logger
}

// NewSyncer creates a syncer that waits delay between page requests.
func NewSyncer(manager *Manager, delay time.Duration, log zerolog.Logger) *Syncer {
	return &Syncer{
		manager: manager,
		delay:   delay,
		sleep:   core.SleepContext,
		log:     log.With().Str("component", "sync").Logger(),
	}
}

// WithSleeper replaces the inter-page sleep (for testing).
func (s *Syncer) WithSleeper(sleep Sleeper) *Syncer {
	s.sleep = sleep
	return s
}

// SyncAll requests pages startPage, startPage+1, ... until one comes back
// empty. Each page is merged, one MergeUpdate per shard it touches, before
// the next page is requested. Pages are fetched serially with the configured
// delay before every request but the first.
func (s *Syncer) SyncAll(ctx context.Context, coll Collection, fetch PageFunc, startPage int) (SyncResult, error) {
	if startPage < core.DefaultStartPage {
		startPage = core.DefaultStartPage
	}

	result := SyncResult{LastPage: startPage - 1}
	for page := startPage; ; page++ {
		if page > startPage {
			if err := s.sleep(ctx, s.delay); err != nil {
				return result, s.abort(coll, page, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return result, s.abort(coll, page, err)
		}

		records, err := fetch(ctx, page)
		if err != nil {
			return result, s.abort(coll, page, err)
		}
		if len(records) == 0 {
			s.log.Debug().Str("collection", coll.Name).Int("page", page).Msg("empty page, sync complete")
			return result, nil
		}

		merged, skipped, err := s.mergePage(coll, records)
		if err != nil {
			return result, s.abort(coll, page, err)
		}

		result.Pages++
		result.Records += merged
		result.Skipped += skipped
		result.LastPage = page
		metrics.PagesSynced.WithLabelValues(coll.Name).Inc()
		s.log.Debug().Str("collection", coll.Name).Int("page", page).Int("records", merged).Msg("page merged")
	}
}

// mergePage groups a page by shard and merges each group.
func (s *Syncer) mergePage(coll Collection, records []Record) (merged, skipped int, err error) {
	byShard := make(map[ShardID]Shard)
	for _, rec := range records {
		key, ok := coll.NaturalKey(rec)
		if !ok {
			skipped++
			s.log.Warn().Str("collection", coll.Name).Str("field", coll.KeyField).Msg("record without natural key skipped")
			continue
		}
		id := coll.ShardID(key)
		if byShard[id] == nil {
			byShard[id] = make(Shard)
		}
		byShard[id][key] = rec
	}

	for id, partial := range byShard {
		if err := s.manager.MergeUpdate(id, partial); err != nil {
			return merged, skipped, err
		}
		merged += len(partial)
	}
	return merged, skipped, nil
}

func (s *Syncer) abort(coll Collection, page int, err error) error {
	metrics.SyncAborts.WithLabelValues(coll.Name).Inc()
	perr := &PaginationError{
		Collection:        coll.Name,
		Page:              page,
		LastCompletedPage: page - 1,
		Err:               err,
	}
	s.log.Error().Err(err).Str("collection", coll.Name).Int("page", page).
		Int("resume_page", perr.ResumePage()).Msg("sync aborted")
	return perr
}
