package trendcore

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// minCorrelationSamples is the smallest history per metric before pairwise
// correlation is attempted.
const minCorrelationSamples = 5

// PearsonCorrelationUpdater is the default CorrelationUpdater. It correlates
// the recent first differences of metric pairs and groups metrics whose
// movement co-varies above the configured threshold.
type PearsonCorrelationUpdater struct {
	cfg    TrendConfig
	logger *slog.Logger

	mu      sync.Mutex
	history map[string][]float64
}

// NewPearsonCorrelationUpdater creates a correlation updater.
func NewPearsonCorrelationUpdater(cfg TrendConfig, logger *slog.Logger) *PearsonCorrelationUpdater {
	return &PearsonCorrelationUpdater{
		cfg:     cfg.withDefaults(),
		logger:  loggerOrDefault(logger),
		history: make(map[string][]float64),
	}
}

// UpdateCorrelations records the batch and returns, for each metric, the
// names of the metrics whose recent movement correlates with it.
func (u *PearsonCorrelationUpdater) UpdateCorrelations(metrics map[string]float64, ts time.Time) (groups map[string][]string) {
	defer func() {
		if r := recover(); r != nil {
			u.logger.Warn("correlation update failed", "panic", r)
			groups = make(map[string][]string)
		}
	}()

	u.mu.Lock()
	defer u.mu.Unlock()

	names := make([]string, 0, len(metrics))
	for name, value := range metrics {
		u.history[name] = appendBoundedValue(u.history[name], finiteOr(value, 0), u.cfg.HistoryLimit)
		names = append(names, name)
	}
	sort.Strings(names)

	groups = make(map[string][]string, len(names))
	for i, a := range names {
		for _, b := range names[i+1:] {
			if u.correlated(a, b) {
				groups[a] = append(groups[a], b)
				groups[b] = append(groups[b], a)
			}
		}
	}
	for _, related := range groups {
		sort.Strings(related)
	}
	return groups
}

// correlated compares the first differences of the overlapping recent window
// of both histories.
func (u *PearsonCorrelationUpdater) correlated(a, b string) bool {
	ha, hb := u.history[a], u.history[b]
	n := len(ha)
	if len(hb) < n {
		n = len(hb)
	}
	if n < minCorrelationSamples {
		return false
	}

	da := diffs(ha[len(ha)-n:])
	db := diffs(hb[len(hb)-n:])
	r := stat.Correlation(da, db, nil)
	if !isFinite(r) {
		// Zero variance on either side.
		return false
	}
	return r >= u.cfg.CorrelationThreshold
}

func diffs(values []float64) []float64 {
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = values[i] - values[i-1]
	}
	return out
}

// ClearHistory wipes all per-metric state.
func (u *PearsonCorrelationUpdater) ClearHistory() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.history = make(map[string][]float64)
}

// TrackedMetrics reports how many metrics currently hold history.
func (u *PearsonCorrelationUpdater) TrackedMetrics() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.history)
}
