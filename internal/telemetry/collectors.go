package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kcbalance/internal/model"
)

// Collectors holds the GA progress metrics of a calibrator.
type Collectors struct {
	GenerationsTotal *prometheus.CounterVec
	EvaluationsTotal *prometheus.CounterVec
	BestError        *prometheus.GaugeVec
	RunDuration      *prometheus.HistogramVec
}

// NewCollectors registers the collectors on reg. A nil reg uses a fresh
// private registry so repeated construction never collides.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Collectors{
		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kcbalance_generations_total",
				Help: "Total number of GA generations completed",
			},
			[]string{"metric"},
		),
		EvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kcbalance_evaluations_total",
				Help: "Total number of candidate fitness evaluations",
			},
			[]string{"metric"},
		),
		BestError: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kcbalance_best_error",
				Help: "Best-ever fitness error of the current run",
			},
			[]string{"metric"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kcbalance_run_duration_seconds",
				Help:    "Duration of one GA run for a metric",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"metric"},
		),
	}
}

func (c *Collectors) ObserveGeneration(diag model.GenerationDiagnostics) {
	if c == nil {
		return
	}
	metric := string(diag.Metric)
	c.GenerationsTotal.WithLabelValues(metric).Inc()
	c.EvaluationsTotal.WithLabelValues(metric).Add(float64(diag.Evaluations))
	c.BestError.WithLabelValues(metric).Set(diag.BestOverall)
}

func (c *Collectors) ObserveRun(metric model.Metric, bestError float64, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.BestError.WithLabelValues(string(metric)).Set(bestError)
	c.RunDuration.WithLabelValues(string(metric)).Observe(elapsed.Seconds())
}
