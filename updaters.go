package trendcore

import "time"

// The six updater roles below are deliberately narrow: one update method per
// concern plus history management. TrendAnalyzer composes them through these
// interfaces so an individual algorithm can be replaced, or substituted in
// tests, without touching the orchestrator.

// MovingAverageUpdater maintains per-metric rolling averages.
type MovingAverageUpdater interface {
	// UpdateMovingAverages records one reading per metric and returns the
	// refreshed averages for every metric in the batch.
	UpdateMovingAverages(metrics map[string]float64, ts time.Time) map[string]MovingAverageData
	// ClearHistory discards all per-metric state.
	ClearHistory()
	// TrackedMetrics reports how many metrics currently hold history.
	TrackedMetrics() int
}

// TrendVelocityUpdater maintains per-metric rate of change per unit time.
type TrendVelocityUpdater interface {
	// UpdateTrendVelocities returns the velocity, in value units per minute,
	// for every metric in the batch. A nil metrics map is rejected.
	UpdateTrendVelocities(metrics map[string]float64, ts time.Time) (map[string]float64, error)
	ClearHistory()
	TrackedMetrics() int
}

// SeasonalityUpdater checks readings against time-of-day expectations.
type SeasonalityUpdater interface {
	UpdateSeasonalPatterns(metrics map[string]float64, ts time.Time) map[string]SeasonalPattern
	ClearHistory()
	TrackedMetrics() int
}

// RegressionUpdater fits per-metric linear trends over retained history.
type RegressionUpdater interface {
	UpdateRegressions(metrics map[string]float64, ts time.Time) map[string]RegressionResult
	ClearHistory()
	TrackedMetrics() int
}

// CorrelationUpdater groups metrics whose recent movement co-varies.
type CorrelationUpdater interface {
	UpdateCorrelations(metrics map[string]float64, ts time.Time) map[string][]string
	ClearHistory()
	TrackedMetrics() int
}

// AnomalyUpdater runs the per-metric anomaly detectors. Every detector that
// fires contributes its own anomaly; nothing is deduplicated here.
type AnomalyUpdater interface {
	UpdateAnomalies(metrics map[string]float64, averages map[string]MovingAverageData, ts time.Time) []MetricAnomaly
	ClearHistory()
	TrackedMetrics() int
}
