package session

import (
	"context"

	"github.com/colthorp/spacetraders-cache-go/internal/cache"
	"github.com/colthorp/spacetraders-cache-go/internal/market"
)

// Market returns the market at waypoint, from cache unless force is set.
func (s *Session) Market(ctx context.Context, waypoint string, force bool) (cache.Record, error) {
	if force {
		return s.Refresh(ctx, cache.Markets, waypoint)
	}
	return s.Get(ctx, cache.Markets, waypoint)
}

// RecordMarketObservation adds one price observation to the chart.
func (s *Session) RecordMarketObservation(obs market.Observation) error {
	return s.chart.RecordObservation(obs)
}

// BestMargin returns the best known buy and sell prices for a commodity.
func (s *Session) BestMargin(commodity string) (market.Margin, bool) {
	return s.chart.BestMargin(commodity)
}

// TopMargins returns the limit most profitable commodities.
func (s *Session) TopMargins(limit int) []market.Margin {
	return s.chart.TopMargins(limit)
}

// RebuildChart replays every cached market into the chart.
func (s *Session) RebuildChart(ctx context.Context) (int, error) {
	return s.chart.Rebuild(ctx)
}

// Chart returns the price chart.
func (s *Session) Chart() *market.Chart {
	return s.chart
}
