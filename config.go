package trendcore

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// TrendConfig configures the trend analysis engine.
type TrendConfig struct {
	// ShortWindow, MediumWindow and LongWindow are the moving-average window
	// lengths, in samples.
	ShortWindow  int `json:"short_window" yaml:"short_window"`
	MediumWindow int `json:"medium_window" yaml:"medium_window"`
	LongWindow   int `json:"long_window" yaml:"long_window"`

	// SmoothingFactor is the exponential-average smoothing factor alpha,
	// clamped to [0, 1].
	SmoothingFactor float64 `json:"smoothing_factor" yaml:"smoothing_factor"`

	// ZScoreThreshold is the minimum z-score for a reading to be flagged at
	// all. HighZScoreThreshold, SevereZScoreThreshold and
	// CriticalZScoreThreshold form the severity staircase above it.
	ZScoreThreshold         float64 `json:"zscore_threshold" yaml:"zscore_threshold"`
	HighZScoreThreshold     float64 `json:"high_zscore_threshold" yaml:"high_zscore_threshold"`
	SevereZScoreThreshold   float64 `json:"severe_zscore_threshold" yaml:"severe_zscore_threshold"`
	CriticalZScoreThreshold float64 `json:"critical_zscore_threshold" yaml:"critical_zscore_threshold"`

	// SpikeChangePercent is the percentage increase (or decrease) versus
	// recent history that counts as a spike (or drop).
	SpikeChangePercent float64 `json:"spike_change_percent" yaml:"spike_change_percent"`

	// VelocityChangeFraction is the fractional change between the two most
	// recent readings that the high-velocity anomaly detector flags.
	VelocityChangeFraction float64 `json:"velocity_change_fraction" yaml:"velocity_change_fraction"`

	// HighVelocityThreshold is the trend velocity magnitude, in value units
	// per minute, above which the velocity updater logs a debug event and
	// the analyzer derives a performance insight.
	HighVelocityThreshold float64 `json:"high_velocity_threshold" yaml:"high_velocity_threshold"`

	// CorrelationThreshold is the minimum Pearson correlation of recent
	// movement for two metrics to be grouped together.
	CorrelationThreshold float64 `json:"correlation_threshold" yaml:"correlation_threshold"`

	// SeasonalDeviationFactor is the number of standard deviations around a
	// seasonal bucket's mean that still counts as a match.
	SeasonalDeviationFactor float64 `json:"seasonal_deviation_factor" yaml:"seasonal_deviation_factor"`

	// HistoryLimit caps the per-metric history retained by the
	// moving-average, velocity, regression and correlation updaters.
	// SeasonalHistoryLimit and AnomalyHistoryLimit cap the per-bucket and
	// per-metric anomaly histories.
	HistoryLimit         int `json:"history_limit" yaml:"history_limit"`
	SeasonalHistoryLimit int `json:"seasonal_history_limit" yaml:"seasonal_history_limit"`
	AnomalyHistoryLimit  int `json:"anomaly_history_limit" yaml:"anomaly_history_limit"`
}

// DefaultTrendConfig returns the default engine configuration.
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		ShortWindow:             5,
		MediumWindow:            15,
		LongWindow:              60,
		SmoothingFactor:         0.3,
		ZScoreThreshold:         2.0,
		HighZScoreThreshold:     3.0,
		SevereZScoreThreshold:   5.0,
		CriticalZScoreThreshold: 12.0,
		SpikeChangePercent:      50.0,
		VelocityChangeFraction:  0.5,
		HighVelocityThreshold:   10.0,
		CorrelationThreshold:    0.8,
		SeasonalDeviationFactor: 2.0,
		HistoryLimit:            60,
		SeasonalHistoryLimit:    100,
		AnomalyHistoryLimit:     100,
	}
}

// ParseTrendConfig parses a YAML document over the defaults. It never touches
// the filesystem; callers own the bytes.
func ParseTrendConfig(data []byte) (TrendConfig, error) {
	cfg := DefaultTrendConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return TrendConfig{}, fmt.Errorf("parse trend config: %w", err)
	}
	return cfg.withDefaults(), nil
}

// withDefaults replaces out-of-range values with defaults so that a partially
// filled config is always usable.
func (c TrendConfig) withDefaults() TrendConfig {
	def := DefaultTrendConfig()
	if c.ShortWindow <= 0 {
		c.ShortWindow = def.ShortWindow
	}
	if c.MediumWindow <= 0 {
		c.MediumWindow = def.MediumWindow
	}
	if c.LongWindow <= 0 {
		c.LongWindow = def.LongWindow
	}
	if c.SmoothingFactor < 0 {
		c.SmoothingFactor = 0
	}
	if c.SmoothingFactor > 1 {
		c.SmoothingFactor = 1
	}
	if c.ZScoreThreshold <= 0 {
		c.ZScoreThreshold = def.ZScoreThreshold
	}
	if c.HighZScoreThreshold <= c.ZScoreThreshold {
		c.HighZScoreThreshold = def.HighZScoreThreshold
	}
	if c.SevereZScoreThreshold <= c.HighZScoreThreshold {
		c.SevereZScoreThreshold = def.SevereZScoreThreshold
	}
	if c.CriticalZScoreThreshold <= c.SevereZScoreThreshold {
		c.CriticalZScoreThreshold = def.CriticalZScoreThreshold
	}
	if c.SpikeChangePercent <= 0 {
		c.SpikeChangePercent = def.SpikeChangePercent
	}
	if c.VelocityChangeFraction <= 0 {
		c.VelocityChangeFraction = def.VelocityChangeFraction
	}
	if c.HighVelocityThreshold <= 0 {
		c.HighVelocityThreshold = def.HighVelocityThreshold
	}
	if c.CorrelationThreshold <= 0 || c.CorrelationThreshold > 1 {
		c.CorrelationThreshold = def.CorrelationThreshold
	}
	if c.SeasonalDeviationFactor <= 0 {
		c.SeasonalDeviationFactor = def.SeasonalDeviationFactor
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	if c.SeasonalHistoryLimit <= 0 {
		c.SeasonalHistoryLimit = def.SeasonalHistoryLimit
	}
	if c.AnomalyHistoryLimit <= 0 {
		c.AnomalyHistoryLimit = def.AnomalyHistoryLimit
	}
	return c
}
