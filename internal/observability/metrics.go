package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// typhoon info service.
type Metrics struct {
	// Upstream fetch metrics.
	UpstreamRequests *prometheus.CounterVec // labels: outcome={success,error}
	UpstreamDuration prometheus.Histogram
	CacheLookups     *prometheus.CounterVec // labels: result={hit,miss,stale}
	FlightsShared    prometheus.Counter
	CacheEntries     prometheus.Gauge

	// Tool-facing metrics.
	ToolRequests *prometheus.CounterVec // labels: tool, outcome={ok,invalid,not_found,unavailable}
	AlertsSent   prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "typhoon_info",
			Name:      "upstream_requests_total",
			Help:      "Upstream API fetches by final outcome, after retries.",
		}, []string{"outcome"}),
		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "typhoon_info",
			Name:      "upstream_fetch_duration_seconds",
			Help:      "Wall time of a complete upstream fetch including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "typhoon_info",
			Name:      "fetch_cache_total",
			Help:      "Fetch cache lookups by result.",
		}, []string{"result"}),
		FlightsShared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "typhoon_info",
			Name:      "fetch_flights_shared_total",
			Help:      "Callers that joined an already in-flight upstream fetch.",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "typhoon_info",
			Name:      "fetch_cache_entries",
			Help:      "Current number of entries in the fetch cache.",
		}),
		ToolRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "typhoon_info",
			Name:      "tool_requests_total",
			Help:      "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "typhoon_info",
			Name:      "impact_alerts_sent_total",
			Help:      "Impact alerts published to the alert topic.",
		}),
	}

	prometheus.MustRegister(
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.CacheLookups,
		m.FlightsShared,
		m.CacheEntries,
		m.ToolRequests,
		m.AlertsSent,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "typhoon_info", Name: "upstream_requests_total"}, []string{"outcome"}),
		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "typhoon_info", Name: "upstream_fetch_duration_seconds"}),
		CacheLookups:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "typhoon_info", Name: "fetch_cache_total"}, []string{"result"}),
		FlightsShared:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "typhoon_info", Name: "fetch_flights_shared_total"}),
		CacheEntries:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "typhoon_info", Name: "fetch_cache_entries"}),
		ToolRequests:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "typhoon_info", Name: "tool_requests_total"}, []string{"tool", "outcome"}),
		AlertsSent:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "typhoon_info", Name: "impact_alerts_sent_total"}),
	}
}
