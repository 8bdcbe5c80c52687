package trendcore

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Detector method names carried on MetricAnomaly.Method.
const (
	methodZScore   = "zscore"
	methodIQR      = "iqr"
	methodSpike    = "spike"
	methodVelocity = "velocity"
)

// minStdDevSamples is the history size at which the z-score detector trusts
// the historical standard deviation instead of the moving-average fallback.
const minStdDevSamples = 5

// MultiDetectorAnomalyUpdater is the default AnomalyUpdater. For every metric
// present in both the batch and the moving-average map it runs four
// independent detectors: z-score, interquartile fences, percentage
// spike/drop and high velocity. Several detectors may fire for the same
// reading; the list is returned undeduplicated.
type MultiDetectorAnomalyUpdater struct {
	cfg    TrendConfig
	logger *slog.Logger

	mu      sync.Mutex
	history map[string][]float64
}

// NewMultiDetectorAnomalyUpdater creates an anomaly updater.
func NewMultiDetectorAnomalyUpdater(cfg TrendConfig, logger *slog.Logger) *MultiDetectorAnomalyUpdater {
	return &MultiDetectorAnomalyUpdater{
		cfg:     cfg.withDefaults(),
		logger:  loggerOrDefault(logger),
		history: make(map[string][]float64),
	}
}

// UpdateAnomalies evaluates the batch against the per-metric anomaly history.
// Metrics without a matching moving-average entry are silently skipped. A
// failure inside one detector is logged and suppresses only that detector's
// finding.
func (u *MultiDetectorAnomalyUpdater) UpdateAnomalies(metrics map[string]float64, averages map[string]MovingAverageData, ts time.Time) []MetricAnomaly {
	var anomalies []MetricAnomaly

	u.mu.Lock()
	defer u.mu.Unlock()
	for name, value := range metrics {
		avg, ok := averages[name]
		if !ok {
			continue
		}
		if !isFinite(value) {
			value = 0
		}

		hist := appendBoundedValue(u.history[name], value, u.cfg.AnomalyHistoryLimit)
		u.history[name] = hist

		for _, det := range []struct {
			method string
			detect func() *MetricAnomaly
		}{
			{methodZScore, func() *MetricAnomaly { return u.detectZScore(name, value, avg, hist, ts) }},
			{methodIQR, func() *MetricAnomaly { return u.detectIQR(name, value, hist, ts) }},
			{methodSpike, func() *MetricAnomaly { return u.detectSpikeDrop(name, value, hist, ts) }},
			{methodVelocity, func() *MetricAnomaly { return u.detectHighVelocity(name, value, hist, ts) }},
		} {
			if a := u.runDetector(det.method, name, det.detect); a != nil {
				anomalies = append(anomalies, *a)
			}
		}
	}
	return anomalies
}

// runDetector isolates a single detector so a failure in one never hides the
// findings of its siblings.
func (u *MultiDetectorAnomalyUpdater) runDetector(method, metric string, detect func() *MetricAnomaly) (a *MetricAnomaly) {
	defer func() {
		if r := recover(); r != nil {
			u.logger.Warn("anomaly detector failed", "method", method, "metric", metric, "panic", r)
			a = nil
		}
	}()
	return detect()
}

// detectZScore flags readings whose deviation from the medium moving average
// exceeds the configured z-score floor.
func (u *MultiDetectorAnomalyUpdater) detectZScore(name string, value float64, avg MovingAverageData, hist []float64, ts time.Time) *MetricAnomaly {
	deviation := value - avg.MediumMA

	var std float64
	if len(hist) >= minStdDevSamples {
		std = stat.StdDev(hist, nil)
	}
	if std <= 0 || !isFinite(std) {
		// Not enough history, or a flat one: fall back to a fraction of the
		// moving average. A zero or negative average produces no anomaly
		// rather than a division by zero.
		std = avg.MediumMA * 0.1
	}
	if std <= 0 || !isFinite(std) {
		return nil
	}

	z := math.Abs(deviation) / std
	sev, flagged := zScoreSeverity(z, u.cfg)
	if !flagged {
		return nil
	}
	return &MetricAnomaly{
		Metric:        name,
		CurrentValue:  value,
		ExpectedValue: avg.MediumMA,
		Deviation:     deviation,
		ZScore:        z,
		Severity:      sev,
		Timestamp:     ts,
		Description:   fmt.Sprintf("z-score anomaly: %.2f standard deviations from medium average", z),
		Method:        methodZScore,
	}
}

// detectIQR flags readings outside the Tukey fences of the retained history,
// current reading included.
func (u *MultiDetectorAnomalyUpdater) detectIQR(name string, value float64, hist []float64, ts time.Time) *MetricAnomaly {
	if len(hist) < 4 {
		return nil
	}

	sorted := make([]float64, len(hist))
	copy(sorted, hist)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 25)
	q3 := percentile(sorted, 75)
	iqr := q3 - q1
	if iqr <= 0 {
		return nil
	}

	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr
	if value >= lower && value <= upper {
		return nil
	}

	// Extended fences escalate extreme outliers.
	severity := SeverityMedium
	switch {
	case value < q1-6*iqr || value > q3+6*iqr:
		severity = SeverityCritical
	case value < q1-3*iqr || value > q3+3*iqr:
		severity = SeverityHigh
	}

	expected := (q1 + q3) / 2
	return &MetricAnomaly{
		Metric:        name,
		CurrentValue:  value,
		ExpectedValue: expected,
		Deviation:     value - expected,
		Severity:      severity,
		Timestamp:     ts,
		Description:   fmt.Sprintf("IQR anomaly: value %.2f outside fences [%.2f, %.2f]", value, lower, upper),
		Method:        methodIQR,
	}
}

// detectSpikeDrop compares the reading against the average of recent history
// (the reading itself excluded) and flags large percentage moves.
func (u *MultiDetectorAnomalyUpdater) detectSpikeDrop(name string, value float64, hist []float64, ts time.Time) *MetricAnomaly {
	if len(hist) < 2 {
		return nil
	}
	baseline := tailMean(hist[:len(hist)-1], u.cfg.MediumWindow)
	if baseline == 0 || !isFinite(baseline) {
		return nil
	}

	pct := (value - baseline) / math.Abs(baseline) * 100
	var description string
	switch {
	case pct >= u.cfg.SpikeChangePercent:
		description = fmt.Sprintf("spike detected %.0f%% above recent average", pct)
	case pct <= -u.cfg.SpikeChangePercent:
		description = fmt.Sprintf("drop detected %.0f%% below recent average", -pct)
	default:
		return nil
	}

	return &MetricAnomaly{
		Metric:        name,
		CurrentValue:  value,
		ExpectedValue: baseline,
		Deviation:     value - baseline,
		Severity:      SeverityHigh,
		Timestamp:     ts,
		Description:   description,
		Method:        methodSpike,
	}
}

// detectHighVelocity flags a large fractional change between the two most
// recent readings.
func (u *MultiDetectorAnomalyUpdater) detectHighVelocity(name string, value float64, hist []float64, ts time.Time) *MetricAnomaly {
	if len(hist) < 2 {
		return nil
	}
	prev := hist[len(hist)-2]
	if prev == 0 {
		return nil
	}

	change := math.Abs(value-prev) / math.Abs(prev)
	if change < u.cfg.VelocityChangeFraction {
		return nil
	}
	severity := SeverityMedium
	if change >= 2*u.cfg.VelocityChangeFraction {
		severity = SeverityHigh
	}

	return &MetricAnomaly{
		Metric:        name,
		CurrentValue:  value,
		ExpectedValue: prev,
		Deviation:     value - prev,
		Severity:      severity,
		Timestamp:     ts,
		Description:   fmt.Sprintf("high velocity change %.0f%% between consecutive readings", change*100),
		Method:        methodVelocity,
	}
}

// zScoreSeverity maps a z-score onto the configured severity staircase. The
// second return value reports whether the score clears the anomaly floor.
func zScoreSeverity(z float64, cfg TrendConfig) (Severity, bool) {
	switch {
	case z >= cfg.CriticalZScoreThreshold:
		return SeverityCritical, true
	case z >= cfg.SevereZScoreThreshold:
		return SeverityHigh, true
	case z >= cfg.HighZScoreThreshold:
		return SeverityMedium, true
	case z >= cfg.ZScoreThreshold:
		return SeverityLow, true
	default:
		return SeverityLow, false
	}
}

// ClearHistory resets all per-metric anomaly history.
func (u *MultiDetectorAnomalyUpdater) ClearHistory() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.history = make(map[string][]float64)
}

// TrackedMetrics reports how many metrics currently hold history.
func (u *MultiDetectorAnomalyUpdater) TrackedMetrics() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.history)
}
