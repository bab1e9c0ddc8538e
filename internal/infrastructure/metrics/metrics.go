// Package metrics defines the prometheus collectors the fraud engine
// records observations into. Exporting them (an HTTP /metrics
// endpoint, a push gateway) is the external metrics sink's job per
// spec.md §1 - this package only owns the collectors and the calls
// that feed them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every metric the engine and its detectors touch.
type Collectors struct {
	DetectorLatency  *prometheus.HistogramVec
	DetectorTimeouts *prometheus.CounterVec
	Decisions        *prometheus.CounterVec
	CacheOps         *prometheus.CounterVec
	AnalyzeLatency   prometheus.Histogram
}

// New registers and returns a fresh set of collectors on reg. Passing
// prometheus.NewRegistry() keeps tests isolated from the global
// registry.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		DetectorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fraudscore",
			Name:      "detector_latency_seconds",
			Help:      "Per-detector task latency observed by the fraud engine.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"detector"}),
		DetectorTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fraudscore",
			Name:      "detector_timeouts_total",
			Help:      "Count of detector tasks that missed their deadline and fell back to a default score.",
		}, []string{"detector"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fraudscore",
			Name:      "decisions_total",
			Help:      "Count of final fraud decisions by outcome.",
		}, []string{"is_fraudulent"}),
		CacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fraudscore",
			Name:      "history_cache_ops_total",
			Help:      "History cache operations by backend and result.",
		}, []string{"backend", "result"}),
		AnalyzeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fraudscore",
			Name:      "analyze_latency_seconds",
			Help:      "End-to-end analyze() latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .15, .2, .3, .5, 1},
		}),
	}

	reg.MustRegister(c.DetectorLatency, c.DetectorTimeouts, c.Decisions, c.CacheOps, c.AnalyzeLatency)
	return c
}
