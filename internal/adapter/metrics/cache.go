package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics holds Prometheus metrics for the poll tally cache.
type CacheMetrics struct {
	Hits          prometheus.Counter
	Misses        prometheus.Counter
	Invalidations prometheus.Counter
	Collapsed     prometheus.Counter
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tally_cache",
			Name:      "hits_total",
			Help:      "Total number of poll tallies served from cache.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tally_cache",
			Name:      "misses_total",
			Help:      "Total number of poll tallies computed from storage.",
		}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tally_cache",
			Name:      "invalidations_total",
			Help:      "Total number of tally cache invalidations.",
		}),
		Collapsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tally_cache",
			Name:      "collapsed_loads_total",
			Help:      "Total number of cache misses that shared an in-flight load.",
		}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Invalidations, m.Collapsed)
	return m
}
