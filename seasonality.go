package trendcore

import (
	"log/slog"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Hourly bucket classifications and their base expected multipliers.
const (
	bucketOffHours        = "off_hours"
	bucketTransitionHours = "transition_hours"
	bucketBusinessHours   = "business_hours"

	offHoursMultiplier        = 0.5
	transitionHoursMultiplier = 1.0
	businessHoursMultiplier   = 1.5

	// weekendDampening scales the expected multiplier down on weekends.
	weekendDampening = 0.6

	// minBucketSamples is the sample count at which a bucket switches from
	// the multiplier range check to its own running statistics.
	minBucketSamples = 3
)

// seasonalKey identifies one (metric, hour-of-day, weekday/weekend) bucket.
type seasonalKey struct {
	metric  string
	hour    int
	weekend bool
}

// BucketSeasonalityUpdater is the default SeasonalityUpdater. It classifies
// each timestamp into an hourly and a daily bucket and checks the reading
// against that bucket's expectation.
type BucketSeasonalityUpdater struct {
	cfg    TrendConfig
	logger *slog.Logger

	mu      sync.Mutex
	buckets map[seasonalKey][]float64
}

// NewBucketSeasonalityUpdater creates a seasonality updater.
func NewBucketSeasonalityUpdater(cfg TrendConfig, logger *slog.Logger) *BucketSeasonalityUpdater {
	return &BucketSeasonalityUpdater{
		cfg:     cfg.withDefaults(),
		logger:  loggerOrDefault(logger),
		buckets: make(map[seasonalKey][]float64),
	}
}

// UpdateSeasonalPatterns checks every reading in the batch against its
// seasonal bucket and records it for future comparisons.
func (u *BucketSeasonalityUpdater) UpdateSeasonalPatterns(metrics map[string]float64, ts time.Time) map[string]SeasonalPattern {
	out := make(map[string]SeasonalPattern, len(metrics))

	u.mu.Lock()
	defer u.mu.Unlock()
	for name, value := range metrics {
		out[name] = u.updateOne(name, value, ts)
	}
	return out
}

func (u *BucketSeasonalityUpdater) updateOne(name string, value float64, ts time.Time) (pattern SeasonalPattern) {
	defer func() {
		if r := recover(); r != nil {
			u.logger.Warn("seasonal pattern update failed", "metric", name, "panic", r)
			pattern = SeasonalPattern{Bucket: bucketName(ts.Hour()), HourOfDay: ts.Hour(), Weekend: isWeekend(ts)}
		}
	}()

	if !isFinite(value) {
		// NaN readings are still tracked; zero makes the comparison come
		// out as a mismatch instead of poisoning the bucket statistics.
		value = 0
	}

	hour := ts.Hour()
	weekend := isWeekend(ts)
	expected := baseMultiplier(hour)
	if weekend {
		expected *= weekendDampening
	}

	key := seasonalKey{metric: name, hour: hour, weekend: weekend}
	hist := u.buckets[key]

	pattern = SeasonalPattern{
		Bucket:             bucketName(hour),
		HourOfDay:          hour,
		Weekend:            weekend,
		ExpectedMultiplier: expected,
		SampleCount:        len(hist),
	}

	if len(hist) >= minBucketSamples {
		m := stat.Mean(hist, nil)
		sd := stat.StdDev(hist, nil)
		pattern.BucketMean = finiteOr(m, 0)
		pattern.BucketStdDev = finiteOr(sd, 0)
		if pattern.BucketStdDev > 0 {
			dev := value - pattern.BucketMean
			if dev < 0 {
				dev = -dev
			}
			pattern.Matches = dev <= u.cfg.SeasonalDeviationFactor*pattern.BucketStdDev
		} else {
			// Zero variance so far; fall back to the multiplier range.
			pattern.Matches = withinMultiplierRange(value, expected)
		}
	} else {
		pattern.Matches = withinMultiplierRange(value, expected)
	}

	if !pattern.Matches {
		u.logger.Debug("seasonal pattern mismatch",
			"metric", name, "bucket", pattern.Bucket, "weekend", weekend,
			"value", value, "expected_multiplier", expected)
	}

	u.buckets[key] = appendBoundedValue(hist, value, u.cfg.SeasonalHistoryLimit)
	return pattern
}

// withinMultiplierRange accepts values between half and one-and-a-half times
// the expected multiplier.
func withinMultiplierRange(value, expected float64) bool {
	return value >= 0.5*expected && value <= 1.5*expected
}

func baseMultiplier(hour int) float64 {
	switch {
	case hour < 6 || hour >= 22:
		return offHoursMultiplier
	case hour >= 9 && hour < 18:
		return businessHoursMultiplier
	default:
		return transitionHoursMultiplier
	}
}

func bucketName(hour int) string {
	switch {
	case hour < 6 || hour >= 22:
		return bucketOffHours
	case hour >= 9 && hour < 18:
		return bucketBusinessHours
	default:
		return bucketTransitionHours
	}
}

func isWeekend(ts time.Time) bool {
	wd := ts.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// ClearHistory wipes all bucket state.
func (u *BucketSeasonalityUpdater) ClearHistory() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.buckets = make(map[seasonalKey][]float64)
}

// TrackedMetrics reports how many distinct metrics have bucket history.
func (u *BucketSeasonalityUpdater) TrackedMetrics() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	seen := make(map[string]struct{})
	for key := range u.buckets {
		seen[key.metric] = struct{}{}
	}
	return len(seen)
}
