package trendcore

import (
	"log/slog"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// minRegressionFit is the smallest history that produces a meaningful fit.
const minRegressionFit = 3

// LinearRegressionUpdater is the default RegressionUpdater. It fits a
// per-metric ordinary least-squares line over the retained history,
// characterizing trend strength beyond a first/last comparison.
type LinearRegressionUpdater struct {
	cfg    TrendConfig
	logger *slog.Logger

	mu      sync.Mutex
	history map[string][]MetricSample
}

// NewLinearRegressionUpdater creates a regression updater.
func NewLinearRegressionUpdater(cfg TrendConfig, logger *slog.Logger) *LinearRegressionUpdater {
	return &LinearRegressionUpdater{
		cfg:     cfg.withDefaults(),
		logger:  loggerOrDefault(logger),
		history: make(map[string][]MetricSample),
	}
}

// UpdateRegressions records one reading per metric and returns the current
// linear fit for each. Metrics without enough history yield a zero-valued fit
// carrying only the sample count.
func (u *LinearRegressionUpdater) UpdateRegressions(metrics map[string]float64, ts time.Time) map[string]RegressionResult {
	out := make(map[string]RegressionResult, len(metrics))

	u.mu.Lock()
	defer u.mu.Unlock()
	for name, value := range metrics {
		out[name] = u.updateOne(name, value, ts)
	}
	return out
}

func (u *LinearRegressionUpdater) updateOne(name string, value float64, ts time.Time) (res RegressionResult) {
	defer func() {
		if r := recover(); r != nil {
			u.logger.Warn("regression update failed", "metric", name, "panic", r)
			res = RegressionResult{}
		}
	}()

	if !isFinite(value) {
		value = 0
	}

	hist := appendBounded(u.history[name], MetricSample{Metric: name, Value: value, Timestamp: ts}, u.cfg.HistoryLimit)
	u.history[name] = hist

	res = RegressionResult{SampleCount: len(hist)}
	if len(hist) < minRegressionFit {
		return res
	}

	xs := make([]float64, len(hist))
	ys := make([]float64, len(hist))
	origin := hist[0].Timestamp
	for i, s := range hist {
		xs[i] = s.Timestamp.Sub(origin).Minutes()
		ys[i] = s.Value
	}
	if xs[len(xs)-1] == xs[0] {
		// All samples share a timestamp; no slope to fit.
		return res
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	res.Intercept = finiteOr(alpha, 0)
	res.Slope = finiteOr(beta, 0)
	res.RSquared = finiteOr(stat.RSquared(xs, ys, nil, alpha, beta), 0)
	return res
}

// ClearHistory wipes all per-metric state.
func (u *LinearRegressionUpdater) ClearHistory() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.history = make(map[string][]MetricSample)
}

// TrackedMetrics reports how many metrics currently hold history.
func (u *LinearRegressionUpdater) TrackedMetrics() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.history)
}
