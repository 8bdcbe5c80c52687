// Package trendcore is the real-time trend-analysis and anomaly-detection
// core of the request-optimization framework. On each call it receives a
// batch of named metric readings with a timestamp, maintains bounded rolling
// history per metric, derives moving averages, velocities, seasonal
// expectations, linear trends and cross-metric correlations, and flags
// statistically abnormal readings with a severity classification.
//
// The engine keeps all state in memory, performs no I/O beyond log calls and
// is safe for concurrent use from multiple goroutines.
package trendcore

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

// ErrNilMetrics is returned when a nil metrics map is passed to an entry
// point that validates its input.
var ErrNilMetrics = errors.New("metrics map is nil")

// TrendAnalyzer orchestrates the six updaters over one metric batch. It
// holds no mutable state of its own; a single shared instance is safe for
// concurrent use because each updater serializes its own history.
type TrendAnalyzer struct {
	cfg    TrendConfig
	logger *slog.Logger

	movingAverages MovingAverageUpdater
	velocities     TrendVelocityUpdater
	seasonality    SeasonalityUpdater
	regressions    RegressionUpdater
	correlations   CorrelationUpdater
	anomalies      AnomalyUpdater

	metrics *TrendMetrics
}

// TrendAnalyzerDeps carries substitute updater implementations. Nil fields
// fall back to the defaults.
type TrendAnalyzerDeps struct {
	MovingAverages MovingAverageUpdater
	Velocities     TrendVelocityUpdater
	Seasonality    SeasonalityUpdater
	Regressions    RegressionUpdater
	Correlations   CorrelationUpdater
	Anomalies      AnomalyUpdater
}

// NewTrendAnalyzer creates an analyzer wired with the default updaters.
func NewTrendAnalyzer(cfg TrendConfig, logger *slog.Logger) *TrendAnalyzer {
	return NewTrendAnalyzerWith(cfg, logger, TrendAnalyzerDeps{})
}

// NewTrendAnalyzerWith creates an analyzer with substitute updaters; nil
// fields get the default implementation.
func NewTrendAnalyzerWith(cfg TrendConfig, logger *slog.Logger, deps TrendAnalyzerDeps) *TrendAnalyzer {
	cfg = cfg.withDefaults()
	logger = loggerOrDefault(logger)

	a := &TrendAnalyzer{
		cfg:            cfg,
		logger:         logger,
		movingAverages: deps.MovingAverages,
		velocities:     deps.Velocities,
		seasonality:    deps.Seasonality,
		regressions:    deps.Regressions,
		correlations:   deps.Correlations,
		anomalies:      deps.Anomalies,
	}
	if a.movingAverages == nil {
		a.movingAverages = NewWindowedAverageUpdater(cfg, logger)
	}
	if a.velocities == nil {
		a.velocities = NewBlendedVelocityUpdater(cfg, logger)
	}
	if a.seasonality == nil {
		a.seasonality = NewBucketSeasonalityUpdater(cfg, logger)
	}
	if a.regressions == nil {
		a.regressions = NewLinearRegressionUpdater(cfg, logger)
	}
	if a.correlations == nil {
		a.correlations = NewPearsonCorrelationUpdater(cfg, logger)
	}
	if a.anomalies == nil {
		a.anomalies = NewMultiDetectorAnomalyUpdater(cfg, logger)
	}
	return a
}

// WithMetrics attaches self-instrumentation. It returns the analyzer for
// chaining.
func (a *TrendAnalyzer) WithMetrics(m *TrendMetrics) *TrendAnalyzer {
	a.metrics = m
	return a
}

// AnalyzeMetricTrends analyzes one batch of metric readings taken at ts.
//
// Threshold-based basic insights are always derived straight from the raw
// values. The six updaters then run inside a single fault-isolated block: a
// failure anywhere in that block leaves every advanced field empty for this
// call while the basic insights survive.
func (a *TrendAnalyzer) AnalyzeMetricTrends(metrics map[string]float64, ts time.Time) (*TrendAnalysisResult, error) {
	if metrics == nil {
		return nil, fmt.Errorf("analyze metric trends: %w", ErrNilMetrics)
	}
	start := time.Now()

	result := &TrendAnalysisResult{
		MovingAverages:      map[string]MovingAverageData{},
		TrendDirections:     map[string]TrendDirection{},
		TrendVelocities:     map[string]float64{},
		SeasonalityPatterns: map[string]SeasonalPattern{},
		RegressionResults:   map[string]RegressionResult{},
		CorrelationGroups:   map[string][]string{},
		Anomalies:           []MetricAnomaly{},
		Timestamp:           ts,
	}

	result.Insights = a.basicInsights(metrics)
	a.updateAdvanced(metrics, ts, result)
	result.Insights = append(result.Insights, a.advancedInsights(result)...)

	a.metrics.observeAnalysis(result, time.Since(start))
	return result, nil
}

// updateAdvanced runs all six updaters and commits their output in one step.
// The block is all-or-nothing: nothing is committed unless every updater
// succeeded, so a failure cannot leave the result partially populated.
func (a *TrendAnalyzer) updateAdvanced(metrics map[string]float64, ts time.Time, result *TrendAnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("advanced trend analysis failed, degrading to basic insights",
				"panic", r, "metrics", len(metrics))
			a.metrics.observeDegraded()
		}
	}()

	averages := a.movingAverages.UpdateMovingAverages(metrics, ts)
	velocities, err := a.velocities.UpdateTrendVelocities(metrics, ts)
	if err != nil {
		a.logger.Error("advanced trend analysis failed, degrading to basic insights",
			"stage", "velocity", "err", err)
		a.metrics.observeDegraded()
		return
	}
	seasonal := a.seasonality.UpdateSeasonalPatterns(metrics, ts)
	regressions := a.regressions.UpdateRegressions(metrics, ts)
	correlations := a.correlations.UpdateCorrelations(metrics, ts)
	anomalies := a.anomalies.UpdateAnomalies(metrics, averages, ts)

	result.MovingAverages = averages
	result.TrendVelocities = velocities
	result.SeasonalityPatterns = seasonal
	result.RegressionResults = regressions
	result.CorrelationGroups = correlations
	result.Anomalies = anomalies
	result.TrendDirections = trendDirections(averages)
}

// trendDirections compares the short and long averages with a 5% stability
// band.
func trendDirections(averages map[string]MovingAverageData) map[string]TrendDirection {
	directions := make(map[string]TrendDirection, len(averages))
	for name, avg := range averages {
		band := 0.05 * math.Abs(avg.LongMA)
		diff := avg.ShortMA - avg.LongMA
		switch {
		case diff > band:
			directions[name] = TrendIncreasing
		case diff < -band:
			directions[name] = TrendDecreasing
		default:
			directions[name] = TrendStable
		}
	}
	return directions
}

// basicInsights derives threshold insights straight from raw values. This
// path depends on no updater, so it survives any downstream failure.
func (a *TrendAnalyzer) basicInsights(metrics map[string]float64) []TrendInsight {
	insights := make([]TrendInsight, 0)
	for name, value := range metrics {
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "cpu"):
			switch {
			case value > 90:
				insights = append(insights, TrendInsight{
					Category:          "resource",
					Severity:          InsightCritical,
					Message:           fmt.Sprintf("%s at %.1f%% is critically high", name, value),
					RecommendedAction: "scale out compute or shed load immediately",
				})
			case value > 80:
				insights = append(insights, TrendInsight{
					Category:          "resource",
					Severity:          InsightWarning,
					Message:           fmt.Sprintf("%s at %.1f%% is elevated", name, value),
					RecommendedAction: "review recent deployments and consider scaling",
				})
			}
		case strings.Contains(lower, "memory") || strings.Contains(lower, "mem"):
			switch {
			case value > 90:
				insights = append(insights, TrendInsight{
					Category:          "resource",
					Severity:          InsightCritical,
					Message:           fmt.Sprintf("%s at %.1f%% is critically high", name, value),
					RecommendedAction: "investigate memory growth; restart or scale before exhaustion",
				})
			case value > 80:
				insights = append(insights, TrendInsight{
					Category:          "resource",
					Severity:          InsightWarning,
					Message:           fmt.Sprintf("%s at %.1f%% is elevated", name, value),
					RecommendedAction: "check for leaks and cache growth",
				})
			}
		case strings.Contains(lower, "latency") || strings.Contains(lower, "duration") || strings.Contains(lower, "time"):
			switch {
			case value > 5000:
				insights = append(insights, TrendInsight{
					Category:          "performance",
					Severity:          InsightCritical,
					Message:           fmt.Sprintf("%s at %.0fms exceeds the critical threshold", name, value),
					RecommendedAction: "enable degraded mode and investigate downstream dependencies",
				})
			case value > 1000:
				insights = append(insights, TrendInsight{
					Category:          "performance",
					Severity:          InsightWarning,
					Message:           fmt.Sprintf("%s at %.0fms is slower than expected", name, value),
					RecommendedAction: "profile the request path",
				})
			}
		case strings.Contains(lower, "error"):
			switch {
			case value > 10:
				insights = append(insights, TrendInsight{
					Category:          "reliability",
					Severity:          InsightCritical,
					Message:           fmt.Sprintf("%s at %.1f%% is critically high", name, value),
					RecommendedAction: "roll back the latest change and page the on-call",
				})
			case value > 5:
				insights = append(insights, TrendInsight{
					Category:          "reliability",
					Severity:          InsightWarning,
					Message:           fmt.Sprintf("%s at %.1f%% is elevated", name, value),
					RecommendedAction: "inspect recent error logs",
				})
			}
		}
	}
	return insights
}

// advancedInsights derives insights from the updater output: sustained
// high-velocity trends and the anomalies found this call.
func (a *TrendAnalyzer) advancedInsights(result *TrendAnalysisResult) []TrendInsight {
	var insights []TrendInsight

	for name, velocity := range result.TrendVelocities {
		if math.Abs(velocity) <= a.cfg.HighVelocityThreshold {
			continue
		}
		if velocity > 0 {
			insights = append(insights, TrendInsight{
				Category:          "performance trend",
				Severity:          InsightWarning,
				Message:           fmt.Sprintf("%s is rising rapidly at %.1f units/min", name, velocity),
				RecommendedAction: "watch for saturation; prepare to scale",
			})
		} else {
			insights = append(insights, TrendInsight{
				Category: "performance improvement",
				Severity: InsightInfo,
				Message:  fmt.Sprintf("%s is falling rapidly at %.1f units/min", name, velocity),
			})
		}
	}

	for _, anomaly := range result.Anomalies {
		insights = append(insights, TrendInsight{
			Category:          "anomaly",
			Severity:          insightSeverityFor(anomaly.Severity),
			Message:           fmt.Sprintf("%s: %s", anomaly.Metric, anomaly.Description),
			RecommendedAction: "correlate with deployments and upstream traffic",
		})
	}
	return insights
}

func insightSeverityFor(s Severity) InsightSeverity {
	switch s {
	case SeverityCritical, SeverityHigh:
		return InsightCritical
	case SeverityMedium:
		return InsightWarning
	default:
		return InsightInfo
	}
}

// DetectPerformanceAnomalies is a lighter standalone entry point. It applies
// only the z-score method against the medium moving average and returns at
// most one anomaly per metric, always keeping the highest severity.
func (a *TrendAnalyzer) DetectPerformanceAnomalies(metrics map[string]float64, averages map[string]MovingAverageData, ts time.Time) []MetricAnomaly {
	best := make(map[string]MetricAnomaly)

	for name, value := range metrics {
		avg, ok := averages[name]
		if !ok {
			continue
		}
		if !isFinite(value) {
			value = 0
		}

		std := avg.MediumMA * 0.1
		if std <= 0 || !isFinite(std) {
			continue
		}
		deviation := value - avg.MediumMA
		z := math.Abs(deviation) / std
		sev, flagged := zScoreSeverity(z, a.cfg)
		if !flagged {
			continue
		}

		candidate := MetricAnomaly{
			Metric:        name,
			CurrentValue:  value,
			ExpectedValue: avg.MediumMA,
			Deviation:     deviation,
			ZScore:        z,
			Severity:      sev,
			Timestamp:     ts,
			Description:   fmt.Sprintf("performance anomaly: %.2f standard deviations from medium average", z),
			Method:        methodZScore,
		}
		if current, exists := best[name]; !exists || candidate.Severity > current.Severity {
			best[name] = candidate
		}
	}

	anomalies := make([]MetricAnomaly, 0, len(best))
	for _, anomaly := range best {
		anomalies = append(anomalies, anomaly)
	}
	a.metrics.observeAnomalies(anomalies)
	return anomalies
}

// CalculateMovingAverages updates and returns the moving averages for the
// batch without running the rest of the analysis.
func (a *TrendAnalyzer) CalculateMovingAverages(metrics map[string]float64, ts time.Time) map[string]MovingAverageData {
	return a.movingAverages.UpdateMovingAverages(metrics, ts)
}

// ClearHistory wipes the state of all six updaters.
func (a *TrendAnalyzer) ClearHistory() {
	a.movingAverages.ClearHistory()
	a.velocities.ClearHistory()
	a.seasonality.ClearHistory()
	a.regressions.ClearHistory()
	a.correlations.ClearHistory()
	a.anomalies.ClearHistory()
}

// AnalyzerStats reports how many metrics each updater currently tracks.
type AnalyzerStats struct {
	MovingAverageMetrics int `json:"moving_average_metrics"`
	VelocityMetrics      int `json:"velocity_metrics"`
	SeasonalityMetrics   int `json:"seasonality_metrics"`
	RegressionMetrics    int `json:"regression_metrics"`
	CorrelationMetrics   int `json:"correlation_metrics"`
	AnomalyMetrics       int `json:"anomaly_metrics"`
}

// Stats snapshots the tracked-metric counts of all six updaters.
func (a *TrendAnalyzer) Stats() AnalyzerStats {
	return AnalyzerStats{
		MovingAverageMetrics: a.movingAverages.TrackedMetrics(),
		VelocityMetrics:      a.velocities.TrackedMetrics(),
		SeasonalityMetrics:   a.seasonality.TrackedMetrics(),
		RegressionMetrics:    a.regressions.TrackedMetrics(),
		CorrelationMetrics:   a.correlations.TrackedMetrics(),
		AnomalyMetrics:       a.anomalies.TrackedMetrics(),
	}
}
