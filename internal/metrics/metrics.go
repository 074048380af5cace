// Package metrics exposes the Prometheus collectors for the query pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auditq",
		Subsystem: "router",
		Name:      "queries_total",
		Help:      "Queries handled by route and final state",
	}, []string{"route", "state"})

	classificationConfidence = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "auditq",
		Subsystem: "classifier",
		Name:      "confidence",
		Help:      "Classification confidence by route",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	}, []string{"route"})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "auditq",
		Subsystem: "router",
		Name:      "stage_latency_seconds",
		Help:      "Latency of each pipeline stage",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"stage"})

	llmFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auditq",
		Subsystem: "llm",
		Name:      "failures_total",
		Help:      "LLM calls that failed, by provider",
	}, []string{"provider"})

	degradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auditq",
		Subsystem: "router",
		Name:      "degraded_total",
		Help:      "Results returned with a notice, by reason",
	}, []string{"reason"})

	mappingsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auditq",
		Subsystem: "pseudonym",
		Name:      "mappings_created_total",
		Help:      "Pseudonym mappings created, by category",
	}, []string{"category"})

	extractionWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auditq",
		Subsystem: "extractor",
		Name:      "warnings_total",
		Help:      "Extracted filter values dropped during validation, by field",
	}, []string{"field"})
)

// ObserveQuery records one finished query.
func ObserveQuery(route, state string, confidence float64) {
	queriesTotal.WithLabelValues(route, state).Inc()
	classificationConfidence.WithLabelValues(route).Observe(confidence)
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, d time.Duration) {
	stageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// LLMFailure counts a failed provider call.
func LLMFailure(provider string) {
	llmFailures.WithLabelValues(provider).Inc()
}

// Degraded counts a result returned with a notice.
func Degraded(reason string) {
	degradedTotal.WithLabelValues(reason).Inc()
}

// MappingCreated counts a new pseudonym mapping.
func MappingCreated(category string) {
	mappingsCreated.WithLabelValues(category).Inc()
}

// ExtractionWarning counts a dropped filter value.
func ExtractionWarning(field string) {
	extractionWarnings.WithLabelValues(field).Inc()
}
