package trendcore

import (
	"time"
)

// Severity classifies how far an anomalous reading deviates from expectation.
type Severity int

const (
	// SeverityLow indicates a mild deviation worth recording.
	SeverityLow Severity = iota
	// SeverityMedium indicates a deviation that warrants attention.
	SeverityMedium
	// SeverityHigh indicates a strong deviation.
	SeverityHigh
	// SeverityCritical indicates an extreme deviation.
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// InsightSeverity classifies operator-facing insights.
type InsightSeverity int

const (
	InsightInfo InsightSeverity = iota
	InsightWarning
	InsightCritical
)

func (s InsightSeverity) String() string {
	switch s {
	case InsightInfo:
		return "info"
	case InsightWarning:
		return "warning"
	case InsightCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// TrendDirection describes the direction a metric is moving in.
type TrendDirection int

const (
	TrendStable TrendDirection = iota
	TrendIncreasing
	TrendDecreasing
)

func (d TrendDirection) String() string {
	switch d {
	case TrendStable:
		return "stable"
	case TrendIncreasing:
		return "increasing"
	case TrendDecreasing:
		return "decreasing"
	default:
		return "unknown"
	}
}

// MetricSample is a single observed reading for a named metric.
type MetricSample struct {
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// MovingAverageData holds the averaged views of one metric at one point in
// time. It is produced fresh on every update and never mutated afterwards.
type MovingAverageData struct {
	CurrentValue  float64   `json:"current_value"`
	ShortMA       float64   `json:"short_ma"`
	MediumMA      float64   `json:"medium_ma"`
	LongMA        float64   `json:"long_ma"`
	ExponentialMA float64   `json:"exponential_ma"`
	Timestamp     time.Time `json:"timestamp"`
}

// SeasonalPattern is the seasonal expectation check for one metric reading.
type SeasonalPattern struct {
	// Bucket is the hourly classification: off_hours, transition_hours or
	// business_hours.
	Bucket string `json:"bucket"`
	// HourOfDay is the hour component of the classified timestamp (0-23).
	HourOfDay int  `json:"hour_of_day"`
	Weekend   bool `json:"weekend"`
	// ExpectedMultiplier is the baseline multiplier for the bucket, with
	// weekend dampening applied.
	ExpectedMultiplier float64 `json:"expected_multiplier"`
	// Matches reports whether the reading fell inside the expected range.
	Matches bool `json:"matches"`
	// SampleCount is the number of historical samples in the bucket before
	// this reading was recorded.
	SampleCount int `json:"sample_count"`
	// BucketMean and BucketStdDev are populated once the bucket has
	// accumulated at least three samples.
	BucketMean   float64 `json:"bucket_mean,omitempty"`
	BucketStdDev float64 `json:"bucket_std_dev,omitempty"`
}

// RegressionResult is a per-metric linear fit over the retained history.
type RegressionResult struct {
	// Slope is the fitted rate of change in value units per minute.
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	// RSquared is the coefficient of determination of the fit (0-1).
	RSquared    float64 `json:"r_squared"`
	SampleCount int     `json:"sample_count"`
}

// MetricAnomaly describes one statistically abnormal reading. It is a value
// object, immutable once created.
type MetricAnomaly struct {
	Metric        string    `json:"metric"`
	CurrentValue  float64   `json:"current_value"`
	ExpectedValue float64   `json:"expected_value"`
	Deviation     float64   `json:"deviation"`
	ZScore        float64   `json:"z_score"`
	Severity      Severity  `json:"severity"`
	Timestamp     time.Time `json:"timestamp"`
	Description   string    `json:"description"`
	// Method names the detector that produced the anomaly: zscore, iqr,
	// spike or velocity.
	Method string `json:"method"`
}

// TrendInsight is a derived, operator-facing observation.
type TrendInsight struct {
	Category          string          `json:"category"`
	Severity          InsightSeverity `json:"severity"`
	Message           string          `json:"message"`
	RecommendedAction string          `json:"recommended_action,omitempty"`
}

// TrendAnalysisResult aggregates everything derived from one metric batch.
// The analyzer retains no reference to it after returning.
type TrendAnalysisResult struct {
	MovingAverages      map[string]MovingAverageData `json:"moving_averages"`
	TrendDirections     map[string]TrendDirection    `json:"trend_directions"`
	TrendVelocities     map[string]float64           `json:"trend_velocities"`
	SeasonalityPatterns map[string]SeasonalPattern   `json:"seasonality_patterns"`
	RegressionResults   map[string]RegressionResult  `json:"regression_results"`
	CorrelationGroups   map[string][]string          `json:"correlation_groups"`
	Anomalies           []MetricAnomaly              `json:"anomalies"`
	Insights            []TrendInsight               `json:"insights"`
	Timestamp           time.Time                    `json:"timestamp"`
}
