// Package market maintains the session-wide price chart built from cached
// market records and reports trade margins.
package market

import (
	"github.com/colthorp/spacetraders-cache-go/internal/cache"
	"github.com/colthorp/spacetraders-cache-go/internal/core"
)

// Simplify trims a market record before it is cached: past transactions are
// dropped and imports, exports and exchange are reduced to commodity symbols.
// The record is modified in place and returned.
func Simplify(rec cache.Record) cache.Record {
	if rec == nil {
		return nil
	}
	delete(rec, "transactions")
	for _, key := range []string{"imports", "exports", "exchange"} {
		items, ok := rec[key].([]interface{})
		if !ok {
			continue
		}
		symbols := make([]interface{}, 0, len(items))
		for _, item := range items {
			switch v := item.(type) {
			case map[string]interface{}:
				if s := core.StringField(v, "symbol"); s != "" {
					symbols = append(symbols, s)
				}
			case string:
				symbols = append(symbols, v)
			}
		}
		rec[key] = symbols
	}
	return rec
}

// Observation is one commodity's prices at one market.
type Observation struct {
	Commodity string
	Waypoint  string
	BuyPrice  int
	SellPrice int
}

// ObservationsFromMarket extracts price observations from a market record.
// Markets without a tradeGoods section yield nothing; trade goods missing a
// price are skipped.
func ObservationsFromMarket(rec cache.Record) []Observation {
	waypoint := core.StringField(rec, "symbol")
	goods, ok := rec["tradeGoods"].([]interface{})
	if !ok || waypoint == "" {
		return nil
	}

	obs := make([]Observation, 0, len(goods))
	for _, g := range goods {
		good, ok := g.(map[string]interface{})
		if !ok {
			continue
		}
		symbol := core.StringField(good, "symbol")
		buy, okBuy := core.IntField(good, "purchasePrice")
		sell, okSell := core.IntField(good, "sellPrice")
		if symbol == "" || !okBuy || !okSell {
			continue
		}
		obs = append(obs, Observation{Commodity: symbol, Waypoint: waypoint, BuyPrice: buy, SellPrice: sell})
	}
	return obs
}
