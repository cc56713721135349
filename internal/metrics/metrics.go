// Package metrics provides Prometheus instrumentation for the cache client.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheLookups counts fetch-or-populate lookups by collection and result (hit/miss).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stcache_cache_lookups_total",
		Help: "Cache lookups partitioned by collection and result",
	}, []string{"collection", "result"})

	// FetchErrors counts fetch functions that failed on a cache miss.
	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stcache_fetch_errors_total",
		Help: "Remote fetches that failed on a cache miss",
	}, []string{"collection"})

	// CorruptShards counts shard files that could not be decoded.
	CorruptShards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stcache_corrupt_shards_total",
		Help: "Shard files treated as empty because they could not be decoded",
	}, []string{"collection"})

	// PagesSynced counts pages merged by a paginated sync.
	PagesSynced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stcache_pages_synced_total",
		Help: "Pages merged into the cache by paginated syncs",
	}, []string{"collection"})

	// SyncAborts counts paginated syncs that stopped on a failed page.
	SyncAborts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stcache_sync_aborts_total",
		Help: "Paginated syncs aborted by a page fetch failure",
	}, []string{"collection"})

	// GuardedActions counts ship actions by outcome (executed/rejected/failed).
	GuardedActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stcache_guarded_actions_total",
		Help: "Ship actions passed through the cooldown gate by outcome",
	}, []string{"outcome"})

	// PriceObservations counts price observations recorded in the chart.
	PriceObservations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stcache_price_observations_total",
		Help: "Commodity price observations recorded in the price chart",
	})

	// APIRequests counts remote API requests by method and status.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stcache_api_requests_total",
		Help: "Remote API requests by method and HTTP status",
	}, []string{"method", "status"})
)

// Handler returns a router serving the Prometheus metrics endpoint.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
