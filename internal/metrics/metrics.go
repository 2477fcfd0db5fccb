package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Route metrics
	RouteCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quote_engine_route_count",
		Help: "Number of configured candidate routes",
	})

	// Quote metrics
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_engine_quote_requests_total",
			Help: "Total number of quote requests",
		},
		[]string{"swap_mode", "status"},
	)

	QuoteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quote_engine_quote_duration_seconds",
			Help:    "Quote session duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"swap_mode"},
	)

	SplitRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quote_engine_split_rounds",
		Help:    "Number of best-route rounds run per quote",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})

	SplitWins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_engine_split_wins_total",
			Help: "Split rounds won per route",
		},
		[]string{"route"},
	)

	// Simulation metrics
	RouteSimulations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_engine_route_simulations_total",
			Help: "Route executions by outcome",
		},
		[]string{"status"},
	)

	RouteSimulationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quote_engine_route_simulation_duration_seconds",
		Help:    "Single route execution duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	})

	EngineCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_engine_engine_calls_total",
			Help: "Calls submitted to the execution engine by result",
		},
		[]string{"status"},
	)

	// State metrics
	OracleFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_engine_oracle_fetches_total",
			Help: "State reads served by the caching oracle",
		},
		[]string{"kind", "source"},
	)

	SnapshotRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quote_engine_snapshot_records_total",
		Help: "Fetch records applied to snapshots",
	})

	// Quote cache metrics
	QuoteCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quote_engine_quote_cache_hits_total",
		Help: "Quotes served from the per-block result cache",
	})

	QuoteCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quote_engine_quote_cache_misses_total",
		Help: "Quote cache lookups that ran a new session",
	})

	QuoteCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quote_engine_quote_cache_size",
		Help: "Quote results currently cached",
	})

	StaleBlockRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quote_engine_stale_block_requests_total",
		Help: "Requests for a block older than the pinned one, served without repinning",
	})

	PinnedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quote_engine_pinned_block",
		Help: "Block number quote sessions are currently pinned to",
	})

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_engine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quote_engine_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quote_engine_http_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)
