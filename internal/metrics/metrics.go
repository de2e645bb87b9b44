// Package metrics counts navigations and failure artifacts for a suite run and
// writes them in the node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Navigation outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeTransient = "transient"
	OutcomeError     = "error"
)

// Set holds the suite's collectors.
type Set struct {
	navigations *prometheus.CounterVec
	retries     prometheus.Counter
	navLatency  prometheus.Histogram
	artifacts   *prometheus.CounterVec
}

// NewSet registers a fresh collector set on reg.
func NewSet(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		navigations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "e2e_navigations_total",
			Help: "Page navigations by outcome",
		}, []string{"outcome"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "e2e_navigation_retries_total",
			Help: "Navigations retried after a transient failure",
		}),
		navLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "e2e_navigation_duration_seconds",
			Help:    "Duration of a single navigation attempt",
			Buckets: prometheus.DefBuckets,
		}),
		artifacts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "e2e_failure_artifacts_total",
			Help: "Failure artifacts by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
}

var (
	registry = prometheus.NewRegistry()
	// Default is the process-wide set written by WriteTextfile.
	Default = NewSet(registry)
)

// Navigation records one navigation attempt.
func (s *Set) Navigation(outcome string, d time.Duration) {
	s.navigations.WithLabelValues(outcome).Inc()
	s.navLatency.Observe(d.Seconds())
}

// Retry records a retried navigation.
func (s *Set) Retry() {
	s.retries.Inc()
}

// Artifact records a stored or failed artifact of kind ("screenshot" or "snapshot").
func (s *Set) Artifact(kind string, err error) {
	outcome := "stored"
	if err != nil {
		outcome = "error"
	}
	s.artifacts.WithLabelValues(kind, outcome).Inc()
}

// WriteTextfile writes the Default set to path. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, registry)
}
