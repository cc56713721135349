package ship

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/colthorp/spacetraders-cache-go/internal/cache"
	"github.com/colthorp/spacetraders-cache-go/internal/core"
)

// Survey sizes, in increasing yield.
const (
	SizeSmall    = "SMALL"
	SizeModerate = "MODERATE"
	SizeLarge    = "LARGE"
)

var sizeRank = map[string]int{SizeSmall: 1, SizeModerate: 2, SizeLarge: 3}

// Survey is a time-limited hint that biases extraction at one waypoint.
type Survey struct {
	Signature  string    `json:"signature"`
	Waypoint   string    `json:"symbol"`
	Deposits   []string  `json:"deposits"`
	Expiration time.Time `json:"expiration"`
	Size       string    `json:"size"`

	// Raw is the record as returned by the API; it is sent back verbatim
	// when extracting with this survey.
	Raw cache.Record `json:"-"`
}

// Has reports whether commodity is among the survey's deposits.
func (s Survey) Has(commodity string) bool {
	return commodity != "" && slices.Contains(s.Deposits, commodity)
}

// SurveyFromRecord parses an API survey record.
func SurveyFromRecord(rec cache.Record) (Survey, error) {
	s := Survey{
		Signature: core.StringField(rec, "signature"),
		Waypoint:  core.StringField(rec, "symbol"),
		Size:      core.StringField(rec, "size"),
		Raw:       rec,
	}
	if s.Signature == "" {
		return Survey{}, errors.New("survey without signature")
	}
	exp, err := core.ParseTimestamp(core.StringField(rec, "expiration"))
	if err != nil {
		return Survey{}, fmt.Errorf("survey %s: %w", s.Signature, err)
	}
	s.Expiration = exp

	if deposits, ok := rec["deposits"].([]interface{}); ok {
		for _, d := range deposits {
			switch v := d.(type) {
			case map[string]interface{}:
				if sym := core.StringField(v, "symbol"); sym != "" {
					s.Deposits = append(s.Deposits, sym)
				}
			case string:
				s.Deposits = append(s.Deposits, v)
			}
		}
	}
	return s, nil
}

// Select picks the survey to extract with at waypoint. Only unexpired
// surveys for that waypoint qualify. A survey containing target beats one
// that doesn't; after that larger beats smaller; remaining ties keep input
// order. ok is false when no survey qualifies. An empty target ranks on
// size alone.
func Select(surveys []Survey, waypoint, target string, now time.Time) (Survey, bool) {
	candidates := make([]Survey, 0, len(surveys))
	for _, s := range surveys {
		if s.Waypoint == waypoint && s.Expiration.After(now) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return Survey{}, false
	}

	slices.SortStableFunc(candidates, func(a, b Survey) int {
		if c := cmp.Compare(matches(b, target), matches(a, target)); c != 0 {
			return c
		}
		return cmp.Compare(sizeRank[b.Size], sizeRank[a.Size])
	})
	return candidates[0], true
}

func matches(s Survey, target string) int {
	if s.Has(target) {
		return 1
	}
	return 0
}

// SurveyBook persists surveys per ship in the surveys collection as one
// append-only list. Expired surveys are hidden on read, never deleted.
type SurveyBook struct {
	manager *cache.Manager
	now     core.Clock
	log     zerolog.Logger
}

// NewSurveyBook creates a survey book over manager.
func NewSurveyBook(manager *cache.Manager, now core.Clock, log zerolog.Logger) *SurveyBook {
	if now == nil {
		now = core.SystemClock
	}
	return &SurveyBook{
		manager: manager,
		now:     now,
		log:     log.With().Str("component", "surveys").Logger(),
	}
}

// surveyListKey holds a ship's survey list inside its shard.
const surveyListKey = "list"

func shardFor(ship string) cache.ShardID {
	return cache.ShardID{Collection: cache.Surveys, Name: ship}
}

// surveyList returns the stored survey records in the order they were added.
func surveyList(shard cache.Shard) []cache.Record {
	holder, ok := shard[surveyListKey]
	if !ok {
		return nil
	}
	items, _ := holder["surveys"].([]interface{})
	out := make([]cache.Record, 0, len(items))
	for _, item := range items {
		if rec, ok := item.(cache.Record); ok {
			out = append(out, rec)
		}
	}
	return out
}

func setSurveyList(shard cache.Shard, list []cache.Record) {
	items := make([]interface{}, len(list))
	for i, rec := range list {
		items[i] = rec
	}
	shard[surveyListKey] = cache.Record{"surveys": items}
}

// Add appends surveys for ship. A signature already in the list keeps its
// original position.
func (b *SurveyBook) Add(ship string, records []cache.Record) error {
	return b.manager.Update(shardFor(ship), func(shard cache.Shard) error {
		list := surveyList(shard)
		seen := make(map[string]bool, len(list))
		for _, rec := range list {
			seen[core.StringField(rec, "signature")] = true
		}
		for _, rec := range records {
			s, err := SurveyFromRecord(rec)
			if err != nil {
				b.log.Warn().Err(err).Str("ship", ship).Msg("survey skipped")
				continue
			}
			if seen[s.Signature] {
				continue
			}
			seen[s.Signature] = true
			list = append(list, rec)
		}
		setSurveyList(shard, list)
		return nil
	})
}

// Surveys returns the unexpired surveys stored for ship in the order they
// were added.
func (b *SurveyBook) Surveys(ship string) ([]Survey, error) {
	shard, err := b.manager.LoadShard(shardFor(ship))
	if err != nil {
		return nil, err
	}

	now := b.now()
	list := surveyList(shard)
	out := make([]Survey, 0, len(list))
	for _, rec := range list {
		s, err := SurveyFromRecord(rec)
		if err != nil || !s.Expiration.After(now) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Remove deletes one survey, e.g. after the API reports it exhausted.
func (b *SurveyBook) Remove(ship, signature string) error {
	return b.manager.Update(shardFor(ship), func(shard cache.Shard) error {
		list := surveyList(shard)
		kept := list[:0]
		for _, rec := range list {
			if core.StringField(rec, "signature") != signature {
				kept = append(kept, rec)
			}
		}
		setSurveyList(shard, kept)
		return nil
	})
}
