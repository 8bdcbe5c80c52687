package trendcore

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// finiteOr returns v unless it is NaN or infinite, in which case it returns
// the fallback. Derived statistics are passed through this before they leave
// the engine so that numeric degeneracy never reaches callers.
func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// percentile interpolates the p-th percentile (0-100) of an ascending-sorted
// sample.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	k := (p / 100) * float64(len(sorted)-1)
	f := math.Floor(k)
	c := math.Ceil(k)
	if f == c {
		return sorted[int(k)]
	}
	return sorted[int(f)]*(c-k) + sorted[int(c)]*(k-f)
}

// tailMean averages the last n values, or all of them if fewer are present.
func tailMean(values []float64, n int) float64 {
	if len(values) == 0 {
		return 0
	}
	if n > len(values) {
		n = len(values)
	}
	return stat.Mean(values[len(values)-n:], nil)
}

// weightedSlopePerMinute fits a recency-weighted regression over the samples
// and returns its slope in value units per minute. More recent points carry
// linearly more weight.
func weightedSlopePerMinute(samples []MetricSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	ws := make([]float64, len(samples))
	origin := samples[0].Timestamp
	for i, s := range samples {
		xs[i] = s.Timestamp.Sub(origin).Minutes()
		ys[i] = s.Value
		ws[i] = float64(i + 1)
	}
	if xs[len(xs)-1] == xs[0] {
		return 0
	}
	_, slope := stat.LinearRegression(xs, ys, ws, false)
	return finiteOr(slope, 0)
}

// appendBounded appends a sample and evicts the oldest entries beyond limit.
func appendBounded(hist []MetricSample, s MetricSample, limit int) []MetricSample {
	hist = append(hist, s)
	if len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	return hist
}

// appendBoundedValue is appendBounded for plain value histories.
func appendBoundedValue(hist []float64, v float64, limit int) []float64 {
	hist = append(hist, v)
	if len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	return hist
}
