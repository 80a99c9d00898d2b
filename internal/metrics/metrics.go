package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pool registry metrics
	PoolCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swap_router_pool_count",
		Help: "Total number of pools in the candidate registry",
	})

	CandidatePaths = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swap_router_candidate_paths",
		Help:    "Number of candidate paths discovered per routing request",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})

	// Routing metrics
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_router_quote_requests_total",
			Help: "Total number of routing requests",
		},
		[]string{"trade_type", "status"},
	)

	QuoteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swap_router_quote_duration_seconds",
			Help:    "Routing request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trade_type"},
	)

	OptimizerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swap_router_optimizer_duration_seconds",
		Help:    "Split optimizer duration in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	PlanSplits = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swap_router_plan_splits",
		Help:    "Number of routes in the returned swap plan",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 7},
	})

	// Batch executor metrics
	QuoteBatchAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swap_router_quote_batch_attempts",
		Help:    "Attempt rounds needed to resolve a quote batch",
		Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
	})

	QuoteBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swap_router_quote_batch_duration_seconds",
		Help:    "Wall time spent resolving a quote batch",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	QuoteChunkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_router_quote_chunk_failures_total",
			Help: "Failed quote chunks by failure kind",
		},
		[]string{"kind"},
	)

	QuoteCallGasUsed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swap_router_quote_call_gas_used_p99",
		Help:    "p99 gas used by successful quote calls per batch",
		Buckets: []float64{50_000, 100_000, 200_000, 400_000, 600_000, 800_000, 1_000_000, 1_500_000},
	})

	QuotesDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_router_quotes_decoded_total",
			Help: "Quote elements by decode outcome",
		},
		[]string{"outcome"},
	)

	// Cache metrics
	RouteCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swap_router_route_cache_hits_total",
		Help: "Total number of cached route hits",
	})

	RouteCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swap_router_route_cache_misses_total",
		Help: "Total number of cached route misses",
	})

	RouteCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swap_router_route_cache_size",
		Help: "Current number of entries in the route cache",
	})

	// Chain metrics
	BlockNumber = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swap_router_block_number",
		Help: "Latest observed chain head",
	})

	GasPriceGwei = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swap_router_gas_price_gwei",
		Help: "Latest observed gas price in gwei",
	})

	RPCCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_router_rpc_calls_total",
			Help: "RPC calls by method and status",
		},
		[]string{"method", "status"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_router_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swap_router_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
