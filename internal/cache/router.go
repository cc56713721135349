package cache

import "github.com/colthorp/spacetraders-cache-go/internal/core"

// Router maps a natural key to the name of the shard that holds it.
type Router interface {
	Route(key string) string
}

// RouterFunc adapts a function to the Router interface.
type RouterFunc func(key string) string

func (f RouterFunc) Route(key string) string { return f(key) }

// PrefixRouter shards on the first n characters of the key. Keys shorter than
// n are their own shard.
func PrefixRouter(n int) Router {
	return RouterFunc(func(key string) string {
		if key == "" {
			return "_"
		}
		if len(key) <= n {
			return key
		}
		return key[:n]
	})
}

// FixedRouter puts every key in the same shard.
func FixedRouter(name string) Router {
	return RouterFunc(func(string) string { return name })
}

// SystemPrefixRouter shards waypoint-keyed records by the prefix of their
// system, so all markets of a system share a shard with its neighbours.
func SystemPrefixRouter(n int) Router {
	prefix := PrefixRouter(n)
	return RouterFunc(func(key string) string {
		return prefix.Route(core.SystemFromWaypoint(key))
	})
}

// Collection describes one namespace of records.
type Collection struct {
	Name string
	// Router picks the shard for a key.
	Router Router
	// KeyField is the record field holding the natural key (e.g. "symbol").
	KeyField string
}

// ShardID returns the shard that holds key.
func (c Collection) ShardID(key string) ShardID {
	return ShardID{Collection: c.Name, Name: c.Router.Route(key)}
}

// NaturalKey extracts the natural key from a record. ok is false when the
// field is absent or not a non-empty string.
func (c Collection) NaturalKey(rec Record) (string, bool) {
	key := core.StringField(rec, c.KeyField)
	return key, key != ""
}

// Standard collection names.
const (
	Systems   = "systems"
	Markets   = "markets"
	Contracts = "contracts"
	Ships     = "ships"
	Factions  = "factions"
	Agents    = "agents"
	Surveys   = "surveys"
	Charts    = "charts"
)

// Catalog returns the collections known to the client. Per-agent collections
// live in a single shard named after the callsign; systems and markets are
// prefix-sharded.
func Catalog(callsign string, prefixLen int) map[string]Collection {
	if prefixLen <= 0 {
		prefixLen = core.DefaultShardPrefixLen
	}
	return map[string]Collection{
		Systems:   {Name: Systems, Router: PrefixRouter(prefixLen), KeyField: "symbol"},
		Markets:   {Name: Markets, Router: SystemPrefixRouter(prefixLen), KeyField: "symbol"},
		Contracts: {Name: Contracts, Router: FixedRouter(callsign), KeyField: "id"},
		Ships:     {Name: Ships, Router: FixedRouter(callsign), KeyField: "symbol"},
		Factions:  {Name: Factions, Router: FixedRouter(Factions), KeyField: "symbol"},
		Agents:    {Name: Agents, Router: FixedRouter(Agents), KeyField: "symbol"},
	}
}
