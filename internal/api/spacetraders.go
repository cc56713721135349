package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/colthorp/spacetraders-cache-go/internal/core"
)

// SpaceTraders provides a typed convenience layer over the SpaceTraders REST API.
// Every method unwraps the "data" envelope of the response.
type SpaceTraders struct {
	transport Transport
	pageLimit int
}

// NewSpaceTraders creates a new high-level API client.
func NewSpaceTraders(transport Transport, pageLimit int) *SpaceTraders {
	if pageLimit <= 0 || pageLimit > core.PageLimit {
		pageLimit = core.PageLimit
	}
	return &SpaceTraders{transport: transport, pageLimit: pageLimit}
}

// GetTransport returns the underlying transport.
func (st *SpaceTraders) GetTransport() Transport {
	return st.transport
}

// recordEndpoints maps a collection to the endpoint of one record.
var recordEndpoints = map[string]func(key string) string{
	"systems":   func(k string) string { return "systems/" + k },
	"markets":   func(k string) string { return fmt.Sprintf("systems/%s/waypoints/%s/market", core.SystemFromWaypoint(k), k) },
	"contracts": func(k string) string { return "my/contracts/" + k },
	"ships":     func(k string) string { return "my/ships/" + k },
	"factions":  func(k string) string { return "factions/" + k },
	"agents":    func(k string) string { return "agents/" + k },
}

// listEndpoints maps a collection to its paginated listing.
var listEndpoints = map[string]string{
	"systems":   "systems",
	"contracts": "my/contracts",
	"ships":     "my/ships",
	"factions":  "factions",
	"agents":    "agents",
}

// GetRecord fetches one record of a collection by natural key.
func (st *SpaceTraders) GetRecord(ctx context.Context, collection, key string) (map[string]interface{}, error) {
	endpoint, ok := recordEndpoints[collection]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	return st.getData(ctx, endpoint(key))
}

// Listable reports whether a collection has a listing endpoint.
func (st *SpaceTraders) Listable(collection string) bool {
	_, ok := listEndpoints[collection]
	return ok
}

// ListPage fetches one page of a collection listing. Pages start at 1.
func (st *SpaceTraders) ListPage(ctx context.Context, collection string, page int) ([]map[string]interface{}, error) {
	endpoint, ok := listEndpoints[collection]
	if !ok {
		return nil, fmt.Errorf("%s: %w", collection, ErrNotListable)
	}
	params := map[string]string{
		"limit": strconv.Itoa(st.pageLimit),
		"page":  strconv.Itoa(page),
	}
	result, err := st.transport.Request(ctx, http.MethodGet, endpoint, params, nil)
	if err != nil {
		return nil, err
	}

	items, _ := result["data"].([]interface{})
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetMarket fetches the market at a waypoint.
func (st *SpaceTraders) GetMarket(ctx context.Context, waypoint string) (map[string]interface{}, error) {
	return st.GetRecord(ctx, "markets", waypoint)
}

// GetCooldown fetches a ship's reactor cooldown. A ship without a cooldown
// returns a nil map.
func (st *SpaceTraders) GetCooldown(ctx context.Context, ship string) (map[string]interface{}, error) {
	return st.getData(ctx, fmt.Sprintf("my/ships/%s/cooldown", ship))
}

// Survey surveys the ship's current waypoint. The result holds "surveys"
// and "cooldown".
func (st *SpaceTraders) Survey(ctx context.Context, ship string) (map[string]interface{}, error) {
	return st.postData(ctx, fmt.Sprintf("my/ships/%s/survey", ship), nil)
}

// Extract extracts resources at the ship's waypoint, targeted by survey when
// one is given.
func (st *SpaceTraders) Extract(ctx context.Context, ship string, survey map[string]interface{}) (map[string]interface{}, error) {
	if survey != nil {
		return st.postData(ctx, fmt.Sprintf("my/ships/%s/extract/survey", ship), survey)
	}
	return st.postData(ctx, fmt.Sprintf("my/ships/%s/extract", ship), nil)
}

func (st *SpaceTraders) getData(ctx context.Context, endpoint string) (map[string]interface{}, error) {
	result, err := st.transport.Request(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}
	return unwrapData(result), nil
}

func (st *SpaceTraders) postData(ctx context.Context, endpoint string, body interface{}) (map[string]interface{}, error) {
	result, err := st.transport.Request(ctx, http.MethodPost, endpoint, nil, body)
	if err != nil {
		return nil, err
	}
	return unwrapData(result), nil
}

func unwrapData(result map[string]interface{}) map[string]interface{} {
	if result == nil {
		return nil
	}
	if data, ok := result["data"].(map[string]interface{}); ok {
		return data
	}
	return result
}
