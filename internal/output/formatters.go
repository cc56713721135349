// Package output provides output formatting utilities for the stcache CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/colthorp/spacetraders-cache-go/internal/cache"
	"github.com/colthorp/spacetraders-cache-go/internal/market"
	"github.com/colthorp/spacetraders-cache-go/internal/ship"
)

// WriteJSON writes item as JSON, indented unless compact.
func WriteJSON(w io.Writer, item interface{}, compact bool) error {
	var (
		data []byte
		err  error
	)
	if compact {
		data, err = json.Marshal(item)
	} else {
		data, err = json.MarshalIndent(item, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// PrintJSON prints a single item as formatted JSON.
func PrintJSON(item interface{}) {
	if err := WriteJSON(os.Stdout, item, false); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
	}
}

// WriteRecords writes the records of a shard or collection as a JSON array
// ordered by key.
func WriteRecords(w io.Writer, records cache.Shard, compact bool) error {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]cache.Record, 0, len(keys))
	for _, k := range keys {
		list = append(list, records[k])
	}
	return WriteJSON(w, list, compact)
}

// WriteMargins writes margins as an aligned table.
func WriteMargins(w io.Writer, margins []market.Margin) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tBUY AT\tBUY\tSELL AT\tSELL\tMARGIN")
	for _, m := range margins {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%d\n",
			m.Commodity, m.Buy.Waypoint, m.Buy.Price, m.Sell.Waypoint, m.Sell.Price, m.Margin)
	}
	return tw.Flush()
}

// WriteOutcome reports a guarded ship action. Rejections print the wait.
func WriteOutcome(w io.Writer, out ship.Outcome, compact bool) error {
	if out.Rejected {
		_, err := fmt.Fprintf(w, "on cooldown: %ds remaining\n", out.Remaining)
		return err
	}
	return WriteJSON(w, out.Result, compact)
}
