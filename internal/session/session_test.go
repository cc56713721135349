package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/spacetraders-cache-go/internal/api"
	"github.com/colthorp/spacetraders-cache-go/internal/cache"
	"github.com/colthorp/spacetraders-cache-go/internal/core"
	"github.com/colthorp/spacetraders-cache-go/internal/market"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

var epoch = time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	session   *Session
	transport *api.InMemoryTransport
	backend   *cache.MemoryBackend
	clock     *fakeClock
	delays    []time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

func newFixtureWith(t *testing.T, configure func(*core.Config)) *fixture {
	t.Helper()
	f := &fixture{
		transport: api.NewInMemoryTransport(),
		backend:   cache.NewMemoryBackend(),
		clock:     &fakeClock{t: epoch},
	}

	cfg := core.DefaultConfig()
	cfg.Callsign = "BADGER"
	cfg.PageLimit = 2
	if configure != nil {
		configure(cfg)
	}

	s, err := New(cfg, zerolog.Nop(), Options{
		Transport: f.transport,
		Backend:   f.backend,
		Clock:     f.clock.Now,
		Sleeper: func(_ context.Context, d time.Duration) error {
			f.delays = append(f.delays, d)
			return nil
		},
	})
	require.NoError(t, err)
	f.session = s
	return f
}

func TestGetCachesRecord(t *testing.T) {
	f := newFixture(t)
	f.transport.SeedObject("my/contracts/clx1", map[string]interface{}{"id": "clx1", "accepted": false})

	rec, err := f.session.Get(context.Background(), cache.Contracts, "clx1")
	require.NoError(t, err)
	assert.Equal(t, "clx1", rec["id"])

	rec, err = f.session.Get(context.Background(), cache.Contracts, "clx1")
	require.NoError(t, err)
	assert.Equal(t, "clx1", rec["id"])
	assert.Equal(t, 1, f.transport.RequestsMade())

	shard, err := f.backend.Load(cache.ShardID{Collection: cache.Contracts, Name: "BADGER"})
	require.NoError(t, err)
	assert.Contains(t, shard, "clx1")
}

func TestGetFailureIsNotCached(t *testing.T) {
	f := newFixture(t)

	_, err := f.session.Get(context.Background(), cache.Ships, "GHOST-1")
	require.ErrorIs(t, err, api.ErrNotFound)
	assert.Equal(t, 0, f.backend.Saves())

	_, err = f.session.Get(context.Background(), "planets", "X")
	assert.Error(t, err)
}

func TestMarketSimplifiedAndCharted(t *testing.T) {
	f := newFixture(t)
	f.transport.SeedObject("systems/X1-AG66/waypoints/X1-AG66-A1/market", map[string]interface{}{
		"symbol":       "X1-AG66-A1",
		"imports":      []interface{}{map[string]interface{}{"symbol": "IRON"}},
		"exports":      []interface{}{},
		"exchange":     []interface{}{},
		"transactions": []interface{}{map[string]interface{}{"units": 1}},
		"tradeGoods": []interface{}{
			map[string]interface{}{"symbol": "COPPER_ORE", "purchasePrice": float64(90), "sellPrice": float64(130)},
		},
	})

	rec, err := f.session.Market(context.Background(), "X1-AG66-A1", false)
	require.NoError(t, err)
	assert.NotContains(t, rec, "transactions")
	assert.Equal(t, []interface{}{"IRON"}, rec["imports"])

	m, ok := f.session.BestMargin("COPPER_ORE")
	require.True(t, ok)
	assert.Equal(t, 40, m.Margin)

	// Markets shard on the system prefix.
	shard, err := f.backend.Load(cache.ShardID{Collection: cache.Markets, Name: "X1-A"})
	require.NoError(t, err)
	assert.Contains(t, shard, "X1-AG66-A1")

	// Forced refresh goes back to the API.
	_, err = f.session.Market(context.Background(), "X1-AG66-A1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.transport.RequestsMade())
}

func TestRefreshAllPagesUntilEmpty(t *testing.T) {
	f := newFixture(t)
	for _, sym := range []string{"X1-AA", "X1-AB", "X1-BA"} {
		f.transport.SeedListing("systems", map[string]interface{}{"symbol": sym})
	}

	result, err := f.session.RefreshAll(context.Background(), cache.Systems, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 3, result.Records)
	assert.Equal(t, 3, f.transport.RequestsTo("systems"))
	assert.Equal(t, []time.Duration{core.DefaultPageDelay, core.DefaultPageDelay}, f.delays)

	n, err := f.session.Count(context.Background(), cache.Systems)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = f.session.RefreshAll(context.Background(), cache.Markets, 1)
	assert.ErrorIs(t, err, api.ErrNotListable)
}

func TestRefreshAllReportsResumePage(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("gateway timeout")
	f.transport.Handle("my/ships", func(_ string, params map[string]string, _ interface{}) (map[string]interface{}, error) {
		if params["page"] == "2" {
			return nil, boom
		}
		return map[string]interface{}{"data": []interface{}{
			map[string]interface{}{"symbol": "BADGER-1"},
			map[string]interface{}{"symbol": "BADGER-2"},
		}}, nil
	})

	_, err := f.session.RefreshAll(context.Background(), cache.Ships, 1)
	var perr *cache.PaginationError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.ResumePage())
	assert.Equal(t, 1, perr.LastCompletedPage)
	assert.ErrorIs(t, err, boom)

	all, err := f.session.List(context.Background(), cache.Ships)
	require.NoError(t, err)
	assert.Len(t, all, 2, "pages before the failure stay cached")
}

func TestListFillsEmptyCollectionOnce(t *testing.T) {
	f := newFixture(t)
	f.transport.SeedListing("factions", map[string]interface{}{"symbol": "COSMIC"}, map[string]interface{}{"symbol": "VOID"})

	all, err := f.session.List(context.Background(), cache.Factions)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	requests := f.transport.RequestsMade()

	all, err = f.session.List(context.Background(), cache.Factions)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, requests, f.transport.RequestsMade())
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t)
	f.transport.SeedObject("systems/X1-AG66", map[string]interface{}{"symbol": "X1-AG66"})

	_, err := f.session.Get(context.Background(), cache.Systems, "X1-AG66")
	require.NoError(t, err)
	require.NoError(t, f.session.Invalidate(cache.Systems, "X1-A"))

	_, err = f.session.Get(context.Background(), cache.Systems, "X1-AG66")
	require.NoError(t, err)
	assert.Equal(t, 2, f.transport.RequestsMade())
}

func TestChartSurvivesSessions(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.RecordMarketObservation(market.Observation{
		Commodity: "FUEL", Waypoint: "X1-AA-1", BuyPrice: 70, SellPrice: 80,
	}))

	s2, err := New(core.DefaultConfig(), zerolog.Nop(), Options{Transport: f.transport, Backend: f.backend})
	require.NoError(t, err)
	m, ok := s2.BestMargin("FUEL")
	require.True(t, ok)
	assert.Equal(t, 10, m.Margin)
	assert.Len(t, s2.TopMargins(5), 1)
	assert.NotEqual(t, f.session.ID, s2.ID)
}

func surveyPayload(sig, waypoint, size string, exp time.Time, deposits ...string) map[string]interface{} {
	list := make([]interface{}, 0, len(deposits))
	for _, d := range deposits {
		list = append(list, map[string]interface{}{"symbol": d})
	}
	return map[string]interface{}{
		"signature":  sig,
		"symbol":     waypoint,
		"size":       size,
		"expiration": exp.Format(time.RFC3339Nano),
		"deposits":   list,
	}
}

func TestSurveyThenExtract(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.transport.SeedObject("my/ships/BADGER-1", map[string]interface{}{
		"symbol": "BADGER-1",
		"nav":    map[string]interface{}{"waypointSymbol": "X1-AG66-B2"},
	})
	f.transport.SeedObject("my/ships/BADGER-1/cooldown", map[string]interface{}{
		"shipSymbol":       "BADGER-1",
		"totalSeconds":     float64(60),
		"remainingSeconds": float64(60),
		"expiration":       epoch.Add(60 * time.Second).Format(time.RFC3339Nano),
	})
	f.transport.Handle("my/ships/BADGER-1/survey", func(string, map[string]string, interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"data": map[string]interface{}{"surveys": []interface{}{
			surveyPayload("S-LARGE", "X1-AG66-B2", "LARGE", epoch.Add(time.Hour), "IRON_ORE"),
			surveyPayload("S-COPPER", "X1-AG66-B2", "SMALL", epoch.Add(time.Hour), "COPPER_ORE"),
			surveyPayload("S-ELSEWHERE", "X1-AG66-C3", "LARGE", epoch.Add(time.Hour), "COPPER_ORE"),
		}}}, nil
	})
	f.transport.Handle("my/ships/BADGER-1/extract/survey", func(_ string, _ map[string]string, body interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"data": map[string]interface{}{"extraction": map[string]interface{}{"shipSymbol": "BADGER-1"}}}, nil
	})

	out, err := f.session.SurveyAction(ctx, "BADGER-1")
	require.NoError(t, err)
	assert.False(t, out.Rejected)

	surveys, err := f.session.Surveys("BADGER-1")
	require.NoError(t, err)
	assert.Len(t, surveys, 3)

	// Cooldown from the survey blocks the extract without touching the API.
	before := f.transport.RequestsMade()
	out, err = f.session.Extract(ctx, "BADGER-1", "COPPER_ORE")
	require.NoError(t, err)
	assert.True(t, out.Rejected)
	assert.Equal(t, 60, out.Remaining)
	assert.Equal(t, before, f.transport.RequestsMade())

	f.clock.t = epoch.Add(61 * time.Second)
	f.transport.SeedObject("my/ships/BADGER-1/cooldown", nil)

	out, err = f.session.Extract(ctx, "BADGER-1", "COPPER_ORE")
	require.NoError(t, err)
	assert.False(t, out.Rejected)
	assert.Equal(t, 1, f.transport.RequestsTo("my/ships/BADGER-1/extract/survey"))
	assert.Equal(t, 0, f.transport.RequestsTo("my/ships/BADGER-1/extract"))

	last := f.transport.RequestLog[len(f.transport.RequestLog)-1]
	assert.Equal(t, "my/ships/BADGER-1/cooldown", last.Endpoint, "cooldown is read after every action")

	var extractBody interface{}
	for _, r := range f.transport.RequestLog {
		if r.Endpoint == "my/ships/BADGER-1/extract/survey" {
			assert.Equal(t, http.MethodPost, r.Method)
			extractBody = r.Body
		}
	}
	body, ok := extractBody.(cache.Record)
	require.True(t, ok, fmt.Sprintf("unexpected body %T", extractBody))
	assert.Equal(t, "S-COPPER", body["signature"])
}

func TestExtractWithoutSurvey(t *testing.T) {
	f := newFixture(t)
	f.transport.SeedObject("my/ships/BADGER-1", map[string]interface{}{
		"symbol": "BADGER-1",
		"nav":    map[string]interface{}{"waypointSymbol": "X1-AG66-B2"},
	})
	f.transport.SeedObject("my/ships/BADGER-1/cooldown", nil)
	f.transport.Handle("my/ships/BADGER-1/extract", func(string, map[string]string, interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"data": map[string]interface{}{}}, nil
	})

	out, err := f.session.Extract(context.Background(), "BADGER-1", "")
	require.NoError(t, err)
	assert.False(t, out.Rejected)
	assert.Equal(t, 1, f.transport.RequestsTo("my/ships/BADGER-1/extract"))
	assert.Equal(t, 0, f.transport.RequestsTo("my/ships/BADGER-1/extract/survey"))
}

func TestExtractPrimesCooldownBeforeRefreshingShip(t *testing.T) {
	f := newFixtureWith(t, func(cfg *core.Config) { cfg.PrimeCooldowns = true })
	f.transport.SeedObject("my/ships/BADGER-1", map[string]interface{}{
		"symbol": "BADGER-1",
		"nav":    map[string]interface{}{"waypointSymbol": "X1-AG66-B2"},
	})
	f.transport.SeedObject("my/ships/BADGER-1/cooldown", map[string]interface{}{
		"shipSymbol":       "BADGER-1",
		"remainingSeconds": float64(30),
		"expiration":       epoch.Add(30 * time.Second).Format(time.RFC3339Nano),
	})

	out, err := f.session.Extract(context.Background(), "BADGER-1", "")
	require.NoError(t, err)
	assert.True(t, out.Rejected)
	assert.Equal(t, 30, out.Remaining)
	assert.Equal(t, 1, f.transport.RequestsMade())
	assert.Equal(t, 1, f.transport.RequestsTo("my/ships/BADGER-1/cooldown"))
	assert.Equal(t, 0, f.transport.RequestsTo("my/ships/BADGER-1"))
}

func TestCooldownFromRecord(t *testing.T) {
	cd, err := cooldownFromRecord("BADGER-1", nil)
	require.NoError(t, err)
	assert.True(t, cd.ExpiresAt.IsZero())

	cd, err = cooldownFromRecord("BADGER-1", cache.Record{"remainingSeconds": float64(0), "expiration": "2024-07-15T10:00:00Z"})
	require.NoError(t, err)
	assert.True(t, cd.ExpiresAt.IsZero())

	cd, err = cooldownFromRecord("BADGER-1", cache.Record{"remainingSeconds": float64(5), "expiration": "2024-07-15T10:00:05.000Z", "totalSeconds": float64(70)})
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(5*time.Second), cd.ExpiresAt)
	assert.Equal(t, 70, cd.TotalSeconds)

	_, err = cooldownFromRecord("BADGER-1", cache.Record{"expiration": "soon"})
	assert.Error(t, err)
}
