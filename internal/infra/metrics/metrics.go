// Package metrics exposes worker counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grc"

// Metrics is safe to use through a nil pointer; every method is a no-op
// then.
type Metrics struct {
	registry          *prometheus.Registry
	sourceRuns        *prometheus.CounterVec
	evidenceStored    *prometheus.CounterVec
	controlTests      *prometheus.CounterVec
	packages          prometheus.Counter
	integrityWarnings prometheus.Counter
	notifyFailures    prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		sourceRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_jobs_total",
			Help:      "Collection job attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		evidenceStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evidence_stored_total",
			Help:      "Evidence items stored, split by whether the blob already existed.",
		}, []string{"source", "deduplicated"}),
		controlTests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_tests_total",
			Help:      "Control test results by outcome and verification kind.",
		}, []string{"outcome", "verification"}),
		packages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_packages_total",
			Help:      "Audit packages assembled.",
		}),
		integrityWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_warnings_total",
			Help:      "Evidence blobs that were missing or failed re-hashing during assembly.",
		}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Notifications that could not be delivered.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sourceRuns, m.evidenceStored, m.controlTests,
		m.packages, m.integrityWarnings, m.notifyFailures,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SourceRun(source string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.sourceRuns.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) EvidenceStored(source string, stored, deduplicated int) {
	if m == nil {
		return
	}
	m.evidenceStored.WithLabelValues(source, "false").Add(float64(stored - deduplicated))
	m.evidenceStored.WithLabelValues(source, "true").Add(float64(deduplicated))
}

func (m *Metrics) ControlTest(passed bool, verification string) {
	if m == nil {
		return
	}
	outcome := "passed"
	if !passed {
		outcome = "failed"
	}
	if verification == "" {
		verification = "none"
	}
	m.controlTests.WithLabelValues(outcome, verification).Inc()
}

func (m *Metrics) PackageAssembled(warnings int) {
	if m == nil {
		return
	}
	m.packages.Inc()
	m.integrityWarnings.Add(float64(warnings))
}

func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}
