package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments pipeline runs. One instance per registry.
type Metrics struct {
	runs              *prometheus.CounterVec
	runIterations     prometheus.Histogram
	iterationDuration prometheus.Histogram
	iterationScore    prometheus.Histogram
	finalScore        prometheus.Histogram
	fixesApplied      prometheus.Counter
}

// NewMetrics registers pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bpmnforge",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Completed pipeline runs by stop reason.",
		}, []string{"stop_reason"}),
		runIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bpmnforge",
			Subsystem: "pipeline",
			Name:      "run_iterations",
			Help:      "Iterations consumed per run.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		iterationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bpmnforge",
			Subsystem: "pipeline",
			Name:      "iteration_duration_seconds",
			Help:      "Wall-clock duration of one generate-score pass.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		iterationScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bpmnforge",
			Subsystem: "pipeline",
			Name:      "iteration_score",
			Help:      "Overall quality score per iteration.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		finalScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bpmnforge",
			Subsystem: "pipeline",
			Name:      "final_score",
			Help:      "Overall quality score of successful runs.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		fixesApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bpmnforge",
			Subsystem: "pipeline",
			Name:      "mechanical_fixes_total",
			Help:      "Mechanical compliance patches applied across all runs.",
		}),
	}
}
