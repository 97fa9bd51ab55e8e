package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dagger_mutations_total",
		Help: "Total number of graph mutations by operation and result code.",
	}, []string{"operation", "result"})

	MutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dagger_mutation_seconds",
		Help:    "Time spent applying a graph mutation, including the commit.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	LockWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dagger_lock_wait_seconds",
		Help:    "Time spent waiting for the mutation gate.",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})

	ComponentsMergedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagger_components_merged_total",
		Help: "Total number of edge additions that joined two component records.",
	})

	ComponentsSplitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagger_components_split_total",
		Help: "Total number of edge removals that split a component record in two or more.",
	})

	CycleRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagger_cycle_rejections_total",
		Help: "Total number of edge additions rejected because they would close a cycle.",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dagger_http_requests_total",
		Help: "Total number of HTTP requests by route and status code.",
	}, []string{"route", "status"})
)

// ResultLabel is the result label value for a mutation outcome.
func ResultLabel(code string) string {
	if code == "" {
		return "ok"
	}
	return code
}
