package trendcore

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// BlendedVelocityUpdater is the default TrendVelocityUpdater. It blends a
// two-point delta with a recency-weighted regression slope over the retained
// history window.
type BlendedVelocityUpdater struct {
	cfg    TrendConfig
	logger *slog.Logger

	mu      sync.Mutex
	history map[string][]MetricSample
}

// minRegressionPoints is the history size at which the weighted-regression
// estimate starts contributing to the blended velocity.
const minRegressionPoints = 5

// NewBlendedVelocityUpdater creates a velocity updater.
func NewBlendedVelocityUpdater(cfg TrendConfig, logger *slog.Logger) *BlendedVelocityUpdater {
	return &BlendedVelocityUpdater{
		cfg:     cfg.withDefaults(),
		logger:  loggerOrDefault(logger),
		history: make(map[string][]MetricSample),
	}
}

// UpdateTrendVelocities returns the rate of change, in value units per
// minute, for every metric in the batch. A nil metrics map is rejected. Any
// per-metric failure yields zero for that metric without aborting the batch.
func (u *BlendedVelocityUpdater) UpdateTrendVelocities(metrics map[string]float64, ts time.Time) (map[string]float64, error) {
	if metrics == nil {
		return nil, fmt.Errorf("update trend velocities: %w", ErrNilMetrics)
	}

	out := make(map[string]float64, len(metrics))
	u.mu.Lock()
	defer u.mu.Unlock()
	for name, value := range metrics {
		out[name] = u.updateOne(name, value, ts)
	}
	return out, nil
}

func (u *BlendedVelocityUpdater) updateOne(name string, value float64, ts time.Time) (velocity float64) {
	// The guard also covers panics raised by a caller-supplied log handler.
	defer func() {
		if r := recover(); r != nil {
			u.logger.Warn("velocity update failed", "metric", name, "panic", r)
			velocity = 0
		}
	}()

	if !isFinite(value) {
		value = 0
	}

	hist := u.history[name]
	if len(hist) == 0 {
		// Nothing to compare against yet.
		u.history[name] = appendBounded(hist, MetricSample{Metric: name, Value: value, Timestamp: ts}, u.cfg.HistoryLimit)
		return 0
	}

	prev := hist[len(hist)-1]
	elapsed := ts.Sub(prev.Timestamp)
	if elapsed < time.Second {
		u.logger.Log(context.Background(), LevelTrace, "insufficient time elapsed",
			"metric", name, "elapsed", elapsed)
		return 0
	}

	simple := (value - prev.Value) / elapsed.Minutes()

	hist = appendBounded(hist, MetricSample{Metric: name, Value: value, Timestamp: ts}, u.cfg.HistoryLimit)
	u.history[name] = hist

	velocity = simple
	if len(hist) >= minRegressionPoints {
		weighted := weightedSlopePerMinute(hist)
		if weighted*simple < 0 {
			// A stale long-run slope momentarily pointing the wrong way
			// loses to the recent two-point delta.
			velocity = simple
		} else {
			velocity = (simple + weighted) / 2
		}
	}
	velocity = finiteOr(velocity, 0)

	if math.Abs(velocity) > u.cfg.HighVelocityThreshold {
		u.logger.Debug("high velocity detected",
			"metric", name, "velocity", velocity, "threshold", u.cfg.HighVelocityThreshold)
	}
	return velocity
}

// ClearHistory wipes all per-metric state.
func (u *BlendedVelocityUpdater) ClearHistory() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.history = make(map[string][]MetricSample)
}

// TrackedMetrics reports how many metrics currently hold history.
func (u *BlendedVelocityUpdater) TrackedMetrics() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.history)
}
