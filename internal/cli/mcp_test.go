package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/spacetraders-cache-go/internal/api"
	"github.com/colthorp/spacetraders-cache-go/internal/cache"
	"github.com/colthorp/spacetraders-cache-go/internal/core"
	"github.com/colthorp/spacetraders-cache-go/internal/market"
	"github.com/colthorp/spacetraders-cache-go/internal/session"
)

func newTestSession(t *testing.T, transport *api.InMemoryTransport) *session.Session {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Callsign = "BADGER"
	s, err := session.New(cfg, zerolog.Nop(), session.Options{
		Transport: transport,
		Backend:   cache.NewMemoryBackend(),
	})
	require.NoError(t, err)
	return s
}

// runMCP feeds the request lines to a server and returns its decoded responses.
func runMCP(t *testing.T, s *session.Session, requests ...string) []MCPResponse {
	t.Helper()
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(requests, "\n") + "\n")
	require.NoError(t, newMCPServer(s, in, &out).Run(context.Background()))

	var responses []MCPResponse
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp MCPResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func toolText(t *testing.T, resp MCPResponse) (string, bool) {
	t.Helper()
	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok, "result should be an object")
	content := result["content"].([]interface{})
	require.Len(t, content, 1)
	text := content[0].(map[string]interface{})["text"].(string)
	isError, _ := result["isError"].(bool)
	return text, isError
}

func TestMCPInitializeAndList(t *testing.T) {
	s := newTestSession(t, api.NewInMemoryTransport())
	responses := runMCP(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	)
	require.Len(t, responses, 2)

	info := responses[0].Result.(map[string]interface{})
	assert.Equal(t, "stcache", info["serverInfo"].(map[string]interface{})["name"])

	tools := responses[1].Result.(map[string]interface{})["tools"].([]interface{})
	var names []string
	for _, tool := range tools {
		names = append(names, tool.(map[string]interface{})["name"].(string))
	}
	assert.Equal(t, []string{"get_record", "best_margin", "top_margins", "ship_cooldown"}, names)
}

func TestMCPUnknownMethodAndTool(t *testing.T) {
	s := newTestSession(t, api.NewInMemoryTransport())
	responses := runMCP(t, s,
		`not json`,
		`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"fly_away"}}`,
	)
	require.Len(t, responses, 2)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, -32601, responses[0].Error.Code)
	require.NotNil(t, responses[1].Error)
	assert.Equal(t, -32602, responses[1].Error.Code)
}

func TestMCPGetRecord(t *testing.T) {
	transport := api.NewInMemoryTransport()
	transport.SeedObject("agents/BADGER", map[string]interface{}{"symbol": "BADGER", "credits": 175000})
	s := newTestSession(t, transport)

	responses := runMCP(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_record","arguments":{"collection":"agents","key":"BADGER"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_record","arguments":{"collection":"agents","key":"BADGER"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_record","arguments":{"collection":"agents","key":"NOBODY"}}}`,
	)
	require.Len(t, responses, 3)

	text, isError := toolText(t, responses[0])
	assert.False(t, isError)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &rec))
	assert.Equal(t, "BADGER", rec["symbol"])

	_, isError = toolText(t, responses[2])
	assert.True(t, isError)

	// second lookup is served from the cache
	assert.Equal(t, 1, transport.RequestsTo("agents/BADGER"))
}

func TestMCPMargins(t *testing.T) {
	s := newTestSession(t, api.NewInMemoryTransport())
	require.NoError(t, s.RecordMarketObservation(market.Observation{Commodity: "COPPER_ORE", Waypoint: "X1-A1-B2", BuyPrice: 10, SellPrice: 8}))
	require.NoError(t, s.RecordMarketObservation(market.Observation{Commodity: "COPPER_ORE", Waypoint: "X1-A1-C3", BuyPrice: 14, SellPrice: 19}))

	responses := runMCP(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"best_margin","arguments":{"commodity":"COPPER_ORE"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"best_margin","arguments":{"commodity":"GOLD"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"top_margins","arguments":{"limit":1}}}`,
	)
	require.Len(t, responses, 3)

	text, isError := toolText(t, responses[0])
	require.False(t, isError)
	var margin market.Margin
	require.NoError(t, json.Unmarshal([]byte(text), &margin))
	assert.Equal(t, "X1-A1-B2", margin.Buy.Waypoint)
	assert.Equal(t, "X1-A1-C3", margin.Sell.Waypoint)
	assert.Equal(t, 9, margin.Margin)

	_, isError = toolText(t, responses[1])
	assert.True(t, isError)

	text, _ = toolText(t, responses[2])
	var top []market.Margin
	require.NoError(t, json.Unmarshal([]byte(text), &top))
	require.Len(t, top, 1)
	assert.Equal(t, "COPPER_ORE", top[0].Commodity)
}

func TestMCPShipCooldown(t *testing.T) {
	transport := api.NewInMemoryTransport()
	transport.SeedObject("my/ships/BADGER-1/cooldown", nil)
	s := newTestSession(t, transport)

	responses := runMCP(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ship_cooldown","arguments":{"ship":"BADGER-1"}}}`,
	)
	require.Len(t, responses, 1)

	text, isError := toolText(t, responses[0])
	require.False(t, isError)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &body))
	assert.Equal(t, "BADGER-1", body["ship"])
	assert.Equal(t, float64(0), body["remaining_seconds"])
}
