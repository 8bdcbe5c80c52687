package trendcore

import (
	"log/slog"
	"sync"
	"time"
)

// WindowedAverageUpdater is the default MovingAverageUpdater. It keeps a
// bounded per-metric history and derives short, medium and long simple moving
// averages plus an exponentially weighted average on every update.
type WindowedAverageUpdater struct {
	cfg    TrendConfig
	logger *slog.Logger

	mu      sync.Mutex
	history map[string][]MetricSample
	ema     map[string]float64
}

// NewWindowedAverageUpdater creates a moving-average updater. A nil logger
// falls back to slog.Default().
func NewWindowedAverageUpdater(cfg TrendConfig, logger *slog.Logger) *WindowedAverageUpdater {
	return &WindowedAverageUpdater{
		cfg:     cfg.withDefaults(),
		logger:  loggerOrDefault(logger),
		history: make(map[string][]MetricSample),
		ema:     make(map[string]float64),
	}
}

// UpdateMovingAverages records one reading per metric and returns the
// refreshed averages. A failure computing a single metric's averages falls
// back to the raw current value for that metric; the rest of the batch is
// unaffected.
func (u *WindowedAverageUpdater) UpdateMovingAverages(metrics map[string]float64, ts time.Time) map[string]MovingAverageData {
	out := make(map[string]MovingAverageData, len(metrics))

	u.mu.Lock()
	defer u.mu.Unlock()
	for name, value := range metrics {
		out[name] = u.updateOne(name, value, ts)
	}
	return out
}

func (u *WindowedAverageUpdater) updateOne(name string, value float64, ts time.Time) (data MovingAverageData) {
	defer func() {
		if r := recover(); r != nil {
			u.logger.Warn("moving average update failed, falling back to raw value",
				"metric", name, "panic", r)
			data = MovingAverageData{
				CurrentValue:  finiteOr(value, 0),
				ShortMA:       finiteOr(value, 0),
				MediumMA:      finiteOr(value, 0),
				LongMA:        finiteOr(value, 0),
				ExponentialMA: finiteOr(value, 0),
				Timestamp:     ts,
			}
		}
	}()

	if !isFinite(value) {
		u.logger.Debug("non-finite metric value replaced with zero", "metric", name, "value", value)
		value = 0
	}

	hist := appendBounded(u.history[name], MetricSample{Metric: name, Value: value, Timestamp: ts}, u.cfg.HistoryLimit)
	u.history[name] = hist

	values := make([]float64, len(hist))
	for i, s := range hist {
		values[i] = s.Value
	}

	alpha := u.cfg.SmoothingFactor
	prev, ok := u.ema[name]
	if !ok || !isFinite(prev) {
		// A corrupted cached value is treated as absent rather than
		// propagated.
		prev = value
	}
	next := value*alpha + prev*(1-alpha)
	if len(hist) == 1 {
		next = value
	}
	u.ema[name] = finiteOr(next, value)

	return MovingAverageData{
		CurrentValue:  value,
		ShortMA:       finiteOr(tailMean(values, u.cfg.ShortWindow), value),
		MediumMA:      finiteOr(tailMean(values, u.cfg.MediumWindow), value),
		LongMA:        finiteOr(tailMean(values, u.cfg.LongWindow), value),
		ExponentialMA: u.ema[name],
		Timestamp:     ts,
	}
}

// ClearHistory wipes all per-metric state.
func (u *WindowedAverageUpdater) ClearHistory() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.history = make(map[string][]MetricSample)
	u.ema = make(map[string]float64)
}

// TrackedMetrics reports how many metrics currently hold history.
func (u *WindowedAverageUpdater) TrackedMetrics() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.history)
}
