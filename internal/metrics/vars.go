package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pricer_resolutions_total",
		Help: "Token price resolutions by outcome source",
	}, []string{"source"})

	ResolveLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricer_resolve_latency_seconds",
		Help:    "Time to resolve one token price",
		Buckets: prometheus.DefBuckets,
	})

	FeedRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pricer_feed_requests_total",
		Help: "External price feed requests by result",
	}, []string{"result"})

	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pricer_cache_lookups_total",
		Help: "Price cache lookups by result",
	}, []string{"result"})

	ChainCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pricer_chain_calls_total",
		Help: "On-chain view calls by method and result",
	}, []string{"method", "result"})
)

func init() {
	prometheus.MustRegister(
		Resolutions,
		ResolveLatency,
		FeedRequests,
		CacheLookups,
		ChainCalls,
	)
}
