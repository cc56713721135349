package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/spacetraders-cache-go/internal/cache"
	"github.com/colthorp/spacetraders-cache-go/internal/market"
	"github.com/colthorp/spacetraders-cache-go/internal/ship"
)

func TestWriteRecordsOrdersByKey(t *testing.T) {
	var buf bytes.Buffer
	err := WriteRecords(&buf, cache.Shard{
		"X1-B": {"symbol": "X1-B"},
		"X1-A": {"symbol": "X1-A"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, `[{"symbol":"X1-A"},{"symbol":"X1-B"}]`+"\n", buf.String())
}

func TestWriteMargins(t *testing.T) {
	var buf bytes.Buffer
	err := WriteMargins(&buf, []market.Margin{{
		Commodity: "COPPER_ORE",
		Buy:       market.PriceEntry{Waypoint: "X1-BB", Price: 90},
		Sell:      market.PriceEntry{Waypoint: "X1-BB", Price: 130},
		Margin:    40,
	}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ITEM"))
	assert.Equal(t, []string{"COPPER_ORE", "X1-BB", "90", "X1-BB", "130", "40"}, strings.Fields(lines[1]))
}

func TestWriteOutcome(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOutcome(&buf, ship.Outcome{Rejected: true, Remaining: 12}, false))
	assert.Equal(t, "on cooldown: 12s remaining\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteOutcome(&buf, ship.Outcome{Result: cache.Record{"ok": true}}, true))
	assert.Equal(t, `{"ok":true}`+"\n", buf.String())
}

func TestMarginJSONShape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, market.Margin{Commodity: "FUEL", Margin: 3}, true))
	assert.Contains(t, buf.String(), `"item":"FUEL"`)
	assert.Contains(t, buf.String(), `"margin":3`)
}
