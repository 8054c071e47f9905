// Package metrics holds the Prometheus instruments of the merge engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MergesTotal counts topic merges.
	// Labels: result (merged, noop, error)
	MergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tmengine",
		Subsystem: "merge",
		Name:      "topics_total",
		Help:      "Total topic merges by result",
	}, []string{"result"})

	// MergeDuration measures top-level merges including all nested sub-merges.
	MergeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tmengine",
		Subsystem: "merge",
		Name:      "duration_seconds",
		Help:      "Topic merge latency in seconds",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	})

	// DuplicatesSuppressed counts statements removed as duplicates.
	// Labels: kind (name, occurrence, variant, association, role)
	DuplicatesSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tmengine",
		Subsystem: "merge",
		Name:      "duplicates_suppressed_total",
		Help:      "Total duplicate statements merged away",
	}, []string{"kind"})

	// IdentityConflicts counts identity collisions.
	// Labels: outcome (merged, rejected)
	IdentityConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tmengine",
		Subsystem: "identity",
		Name:      "conflicts_total",
		Help:      "Total identity collisions by outcome",
	}, []string{"outcome"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
