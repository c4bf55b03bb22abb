package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	completionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidekick_completions_total",
			Help: "Inline completion results by source.",
		},
		[]string{"source"},
	)
	completionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sidekick_completion_latency_seconds",
			Help:    "Inline completion latency by source.",
			Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
		[]string{"source"},
	)
	completionSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidekick_completion_skips_total",
			Help: "Suggestions suppressed by the trigger policy, by reason.",
		},
		[]string{"reason"},
	)
	backendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidekick_backend_request_errors_total",
			Help: "Failed backend calls by kind.",
		},
		[]string{"kind"},
	)
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidekick_cache_lookups_total",
			Help: "Completion cache lookups by result.",
		},
		[]string{"result"},
	)
	cacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sidekick_cache_evictions_total",
			Help: "Completion cache capacity evictions.",
		},
	)
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidekick_operations_total",
			Help: "Explain/refactor/tests operations by outcome.",
		},
		[]string{"task", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(completionsTotal, completionLatency, completionSkips, backendErrors, cacheLookups, cacheEvictions, operationsTotal)
}
