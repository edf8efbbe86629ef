// Package metrics exposes Prometheus instruments for the CDSS pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reperto"

var (
	// stageLatency measures pipeline stage latency.
	// Labels: stage (map, score, explain, insights), status (ok, error)
	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "stage_latency_seconds",
		Help:      "Latency of CDSS pipeline stages in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
	}, []string{"stage", "status"})

	// candidateConfidence tracks the distribution of mapped rubric confidences.
	candidateConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "candidate_confidence",
		Help:      "Distribution of rubric candidate confidence scores",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	// analyses counts case analyses by outcome.
	// Labels: outcome (ranked, no_rubrics, error)
	analyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "analyses_total",
		Help:      "Total case analyses by outcome",
	}, []string{"outcome"})

	// insightResults counts text generation results.
	// Labels: result (ok, timeout, malformed, upstream, circuit_open, rate_limited, disabled)
	insightResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "insights",
		Name:      "results_total",
		Help:      "Total narrative generation results",
	}, []string{"result"})

	// datasetRecords counts captured phrase mappings.
	// Labels: status (written, dropped, failed)
	datasetRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dataset",
		Name:      "records_total",
		Help:      "Total phrase mapping records by status",
	}, []string{"status"})

	// builderStageDuration measures golden builder stage durations.
	builderStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "builder",
		Name:      "stage_duration_seconds",
		Help:      "Golden repertory builder stage duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"stage"})
)

// ObserveStage records the latency of a pipeline stage.
func ObserveStage(stage string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	stageLatency.WithLabelValues(stage, status).Observe(time.Since(start).Seconds())
}

// ObserveConfidence records a candidate confidence.
func ObserveConfidence(c float64) {
	candidateConfidence.Observe(c)
}

// CountAnalysis records an analysis outcome.
func CountAnalysis(outcome string) {
	analyses.WithLabelValues(outcome).Inc()
}

// CountInsight records a text generation result.
func CountInsight(result string) {
	insightResults.WithLabelValues(result).Inc()
}

// CountDataset records n phrase mapping records with a status.
func CountDataset(status string, n int) {
	datasetRecords.WithLabelValues(status).Add(float64(n))
}

// ObserveBuilderStage records how long a builder stage took.
func ObserveBuilderStage(stage string, d time.Duration) {
	builderStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
