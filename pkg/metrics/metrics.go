// Package metrics provides Prometheus metrics for the prediction engine.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/accumulator"
	"github.com/phenomenon0/puntaiq/pkg/predict"
)

// EngineMetrics collects and exposes engine Prometheus metrics.
type EngineMetrics struct {
	registry *prometheus.Registry

	// Fixture metrics
	FixturesFetched *prometheus.GaugeVec
	FetchErrors     *prometheus.CounterVec

	// Prediction metrics
	PredictionsTotal     *prometheus.CounterVec
	PredictionConfidence *prometheus.HistogramVec
	DegradedTotal        *prometheus.CounterVec
	PremiumTotal         *prometheus.CounterVec
	ValueBetsTotal       *prometheus.CounterVec

	// Accumulator metrics
	AccumulatorsBuilt     *prometheus.GaugeVec
	AccumulatorOdds       *prometheus.HistogramVec
	AccumulatorConfidence *prometheus.HistogramVec

	// Sink metrics
	SinkFailures *prometheus.CounterVec

	// Pipeline metrics
	BatchRuns     *prometheus.CounterVec
	BatchDuration *prometheus.HistogramVec
	StageLatency  *prometheus.HistogramVec
	LastBatchUnix prometheus.Gauge
}

// NewEngineMetrics creates a collector on a private registry.
func NewEngineMetrics() *EngineMetrics {
	registry := prometheus.NewRegistry()

	em := &EngineMetrics{
		registry: registry,

		FixturesFetched: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "puntaiq_fixtures_fetched",
				Help: "Fixtures fetched in the last batch",
			},
			[]string{"sport"},
		),
		FetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puntaiq_fetch_errors_total",
				Help: "Total number of failed fixture fetches",
			},
			[]string{"sport"},
		),

		PredictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puntaiq_predictions_total",
				Help: "Total number of predictions produced",
			},
			[]string{"sport", "model"},
		),
		PredictionConfidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "puntaiq_prediction_confidence",
				Help:    "Confidence of primary predictions",
				Buckets: prometheus.LinearBuckets(10, 10, 9), // 10 to 90
			},
			[]string{"sport"},
		),
		DegradedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puntaiq_degraded_predictions_total",
				Help: "Predictions that fell back to the degraded placeholder",
			},
			[]string{"sport"},
		),
		PremiumTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puntaiq_premium_predictions_total",
				Help: "Predictions flagged premium",
			},
			[]string{"sport"},
		),
		ValueBetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puntaiq_value_bets_total",
				Help: "Value bets attached to predictions",
			},
			[]string{"sport", "tier"},
		),

		AccumulatorsBuilt: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "puntaiq_accumulators",
				Help: "Accumulators in the last catalog per bucket",
			},
			[]string{"bucket"},
		),
		AccumulatorOdds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "puntaiq_accumulator_total_odds",
				Help:    "Total odds of built accumulators",
				Buckets: prometheus.ExponentialBuckets(1.5, 2, 12), // 1.5 to ~3000
			},
			[]string{"size"},
		),
		AccumulatorConfidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "puntaiq_accumulator_confidence",
				Help:    "Confidence of built accumulators",
				Buckets: prometheus.LinearBuckets(10, 10, 9),
			},
			[]string{"size"},
		),

		SinkFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puntaiq_sink_failures_total",
				Help: "Failed sink operations",
			},
			[]string{"op"},
		),

		BatchRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puntaiq_batch_runs_total",
				Help: "Total number of batch runs",
			},
			[]string{"status"},
		),
		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "puntaiq_batch_duration_seconds",
				Help:    "Total batch run duration",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
			},
			[]string{},
		),
		StageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "puntaiq_stage_latency_seconds",
				Help:    "Individual stage latency",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"stage"},
		),
		LastBatchUnix: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "puntaiq_last_batch_timestamp_seconds",
				Help: "Unix time of the last completed batch",
			},
		),
	}

	em.registerAll()
	return em
}

func (em *EngineMetrics) registerAll() {
	em.registry.MustRegister(
		em.FixturesFetched,
		em.FetchErrors,
		em.PredictionsTotal,
		em.PredictionConfidence,
		em.DegradedTotal,
		em.PremiumTotal,
		em.ValueBetsTotal,
		em.AccumulatorsBuilt,
		em.AccumulatorOdds,
		em.AccumulatorConfidence,
		em.SinkFailures,
		em.BatchRuns,
		em.BatchDuration,
		em.StageLatency,
		em.LastBatchUnix,
	)
}

// Registry returns the prometheus registry.
func (em *EngineMetrics) Registry() *prometheus.Registry {
	return em.registry
}

// --- Helper methods for recording metrics ---

// RecordFetch records the outcome of a fixture fetch.
func (em *EngineMetrics) RecordFetch(sport core.Sport, count int, err error) {
	if err != nil {
		em.FetchErrors.WithLabelValues(string(sport)).Inc()
		return
	}
	em.FixturesFetched.WithLabelValues(string(sport)).Set(float64(count))
}

// RecordPredictions records a batch of predictions.
func (em *EngineMetrics) RecordPredictions(preds []predict.Prediction) {
	for _, p := range preds {
		sport := string(p.Sport)
		em.PredictionsTotal.WithLabelValues(sport, p.Model).Inc()
		if p.Degraded {
			em.DegradedTotal.WithLabelValues(sport).Inc()
			continue
		}
		em.PredictionConfidence.WithLabelValues(sport).Observe(p.Confidence)
		if p.IsPremium {
			em.PremiumTotal.WithLabelValues(sport).Inc()
		}
		if p.ValueBet != nil {
			em.ValueBetsTotal.WithLabelValues(sport, p.ValueBet.Tier.Key()).Inc()
		}
	}
}

// RecordCatalog records the accumulators of a catalog.
func (em *EngineMetrics) RecordCatalog(buckets map[string][]accumulator.Accumulator) {
	em.AccumulatorsBuilt.Reset()
	seen := make(map[string]bool)
	for name, accs := range buckets {
		em.AccumulatorsBuilt.WithLabelValues(name).Set(float64(len(accs)))
		for _, a := range accs {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			size := strconv.Itoa(a.Size)
			em.AccumulatorOdds.WithLabelValues(size).Observe(a.TotalOdds)
			em.AccumulatorConfidence.WithLabelValues(size).Observe(a.Confidence)
		}
	}
}

// RecordSinkFailure records a failed sink operation.
func (em *EngineMetrics) RecordSinkFailure(op string) {
	em.SinkFailures.WithLabelValues(op).Inc()
}

// RecordBatch records a batch run.
func (em *EngineMetrics) RecordBatch(status string, duration time.Duration, finished time.Time) {
	em.BatchRuns.WithLabelValues(status).Inc()
	if duration > 0 {
		em.BatchDuration.WithLabelValues().Observe(duration.Seconds())
	}
	if status == "success" {
		em.LastBatchUnix.Set(float64(finished.Unix()))
	}
}

// RecordStage records a stage execution.
func (em *EngineMetrics) RecordStage(stage string, duration time.Duration) {
	em.StageLatency.WithLabelValues(stage).Observe(duration.Seconds())
}

var (
	defaultMetrics *EngineMetrics
	defaultOnce    sync.Once
)

// Default returns the process-wide metrics collector.
func Default() *EngineMetrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewEngineMetrics()
	})
	return defaultMetrics
}
