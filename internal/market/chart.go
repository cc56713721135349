package market

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/colthorp/spacetraders-cache-go/internal/cache"
	"github.com/colthorp/spacetraders-cache-go/internal/core"
	"github.com/colthorp/spacetraders-cache-go/internal/metrics"
)

// ChartShard is where the chart is persisted: one record per commodity.
var ChartShard = cache.ShardID{Collection: cache.Charts, Name: "price_chart"}

// Margin pairs the best place to buy a commodity with the best place to sell it.
// Margin is Sell.Price - Buy.Price and may be negative.
type Margin struct {
	Commodity string     `json:"item"`
	Buy       PriceEntry `json:"buy"`
	Sell      PriceEntry `json:"sell"`
	Margin    int        `json:"margin"`
}

type book struct {
	buy  *PriceEntrySet
	sell *PriceEntrySet
}

// Chart tracks the K cheapest places to buy and the K best places to sell
// every commodity seen in market data. Books are created on first
// observation and persisted through the cache manager after every change.
type Chart struct {
	mu      sync.Mutex
	depth   int
	books   map[string]*book
	manager *cache.Manager
	log     zerolog.Logger
}

// NewChart creates an empty chart keeping depth entries per side.
// A nil manager keeps the chart in memory only.
func NewChart(manager *cache.Manager, depth int, log zerolog.Logger) *Chart {
	if depth < 1 {
		depth = core.DefaultChartDepth
	}
	return &Chart{
		depth:   depth,
		books:   make(map[string]*book),
		manager: manager,
		log:     log.With().Str("component", "chart").Logger(),
	}
}

func (c *Chart) bookFor(commodity string) *book {
	b, ok := c.books[commodity]
	if !ok {
		b = &book{
			buy:  NewPriceEntrySet(c.depth, LowerIsBetter),
			sell: NewPriceEntrySet(c.depth, HigherIsBetter),
		}
		c.books[commodity] = b
	}
	return b
}

// Load restores the persisted chart, adding to what is already in memory.
func (c *Chart) Load() error {
	if c.manager == nil {
		return nil
	}
	shard, err := c.manager.LoadShard(ChartShard)
	if err != nil {
		return fmt.Errorf("chart: load: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(shard))
	for name := range shard {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rec := shard[name]
		b := c.bookFor(name)
		for _, e := range decodeEntries(rec["buy"]) {
			b.buy.Insert(e)
		}
		for _, e := range decodeEntries(rec["sell"]) {
			b.sell.Insert(e)
		}
	}
	c.log.Debug().Int("commodities", len(names)).Msg("price chart loaded")
	return nil
}

// RecordObservation inserts the buy and sell prices of one observation.
func (c *Chart) RecordObservation(obs Observation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observe(obs)
	return c.persist([]string{obs.Commodity})
}

// RecordMarket records every trade good of a market record. A market with
// no tradeGoods section leaves the chart untouched.
func (c *Chart) RecordMarket(rec cache.Record) (int, error) {
	obs := ObservationsFromMarket(rec)
	if len(obs) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	touched := make([]string, 0, len(obs))
	for _, o := range obs {
		c.observe(o)
		touched = append(touched, o.Commodity)
	}
	return len(obs), c.persist(touched)
}

// Rebuild replays every cached market record into the chart. Nothing is
// cleared first.
func (c *Chart) Rebuild(ctx context.Context) (int, error) {
	if c.manager == nil {
		return 0, nil
	}
	markets, err := c.manager.LoadCollection(ctx, cache.Markets)
	if err != nil {
		return 0, fmt.Errorf("chart: rebuild: %w", err)
	}
	return c.RebuildFrom(markets)
}

// RebuildFrom replays the given market records, in key order.
func (c *Chart) RebuildFrom(markets cache.Shard) (int, error) {
	waypoints := make([]string, 0, len(markets))
	for wp := range markets {
		waypoints = append(waypoints, wp)
	}
	sort.Strings(waypoints)

	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		n       int
		touched []string
	)
	for _, wp := range waypoints {
		for _, o := range ObservationsFromMarket(markets[wp]) {
			c.observe(o)
			touched = append(touched, o.Commodity)
			n++
		}
	}
	c.log.Info().Int("markets", len(waypoints)).Int("observations", n).Msg("price chart rebuilt")
	return n, c.persist(touched)
}

func (c *Chart) observe(o Observation) {
	b := c.bookFor(o.Commodity)
	b.buy.Insert(PriceEntry{Waypoint: o.Waypoint, Price: o.BuyPrice})
	b.sell.Insert(PriceEntry{Waypoint: o.Waypoint, Price: o.SellPrice})
	metrics.PriceObservations.Inc()
}

// persist writes the named commodities' books. Caller holds c.mu.
func (c *Chart) persist(commodities []string) error {
	if c.manager == nil || len(commodities) == 0 {
		return nil
	}
	partial := make(cache.Shard, len(commodities))
	for _, name := range commodities {
		b := c.books[name]
		partial[name] = cache.Record{
			"buy":  encodeEntries(b.buy.Entries()),
			"sell": encodeEntries(b.sell.Entries()),
		}
	}
	if err := c.manager.MergeUpdate(ChartShard, partial); err != nil {
		return fmt.Errorf("chart: persist: %w", err)
	}
	return nil
}

// BestMargin returns the best buy and sell entries for a commodity. ok is
// false when the commodity has never been observed.
func (c *Chart) BestMargin(commodity string) (Margin, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bestMargin(commodity)
}

func (c *Chart) bestMargin(commodity string) (Margin, bool) {
	b, ok := c.books[commodity]
	if !ok {
		return Margin{}, false
	}
	buy, okBuy := b.buy.Best()
	sell, okSell := b.sell.Best()
	if !okBuy || !okSell {
		return Margin{}, false
	}
	return Margin{Commodity: commodity, Buy: buy, Sell: sell, Margin: sell.Price - buy.Price}, true
}

// TopMargins returns up to limit margins, largest first. Equal margins are
// ordered by commodity name. A limit of zero or less returns all of them.
func (c *Chart) TopMargins(limit int) []Margin {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.books))
	for name := range c.books {
		names = append(names, name)
	}
	sort.Strings(names)

	margins := make([]Margin, 0, len(names))
	for _, name := range names {
		if m, ok := c.bestMargin(name); ok {
			margins = append(margins, m)
		}
	}
	slices.SortStableFunc(margins, func(a, b Margin) int {
		return cmp.Compare(b.Margin, a.Margin)
	})

	if limit > 0 && len(margins) > limit {
		margins = margins[:limit]
	}
	return margins
}

// Entries returns a commodity's buy and sell entries, best first.
func (c *Chart) Entries(commodity string) (buy, sell []PriceEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.books[commodity]
	if !ok {
		return nil, nil
	}
	return b.buy.Entries(), b.sell.Entries()
}

// Commodities returns the observed commodity symbols, sorted.
func (c *Chart) Commodities() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.books))
	for name := range c.books {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func encodeEntries(entries []PriceEntry) []interface{} {
	out := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{"waypoint": e.Waypoint, "price": e.Price})
	}
	return out
}

func decodeEntries(v interface{}) []PriceEntry {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]PriceEntry, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		wp := core.StringField(m, "waypoint")
		price, ok := core.IntField(m, "price")
		if wp == "" || !ok {
			continue
		}
		out = append(out, PriceEntry{Waypoint: wp, Price: price})
	}
	return out
}
