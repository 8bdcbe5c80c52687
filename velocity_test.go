package trendcore

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestVelocityFirstObservation(t *testing.T) {
	u := NewBlendedVelocityUpdater(DefaultTrendConfig(), nil)

	out, err := u.UpdateTrendVelocities(map[string]float64{"cpu": 50}, testTimestamp())
	if err != nil {
		t.Fatalf("UpdateTrendVelocities: %v", err)
	}
	if got := out["cpu"]; got != 0 {
		t.Errorf("first observation velocity = %v, want 0", got)
	}
}

func TestVelocityUnderOneSecond(t *testing.T) {
	u := NewBlendedVelocityUpdater(DefaultTrendConfig(), nil)

	ts := testTimestamp()
	mustVelocities(t, u, map[string]float64{"cpu": 50}, ts)
	out := mustVelocities(t, u, map[string]float64{"cpu": 500}, ts.Add(500*time.Millisecond))

	if got := out["cpu"]; got != 0 {
		t.Errorf("velocity under one second = %v, want 0", got)
	}
}

func TestVelocityPerMinute(t *testing.T) {
	ts := testTimestamp()
	tests := []struct {
		name     string
		previous float64
		current  float64
		want     float64
	}{
		{"rising", 50.0, 60.0, 10.0},
		{"falling", 100.0, 70.0, -30.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewBlendedVelocityUpdater(DefaultTrendConfig(), nil)
			mustVelocities(t, u, map[string]float64{"m": tt.previous}, ts)
			out := mustVelocities(t, u, map[string]float64{"m": tt.current}, ts.Add(60*time.Second))
			if got := out["m"]; math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("velocity = %v, want %v units/minute", got, tt.want)
			}
		})
	}
}

func TestVelocityNilMetrics(t *testing.T) {
	u := NewBlendedVelocityUpdater(DefaultTrendConfig(), nil)

	_, err := u.UpdateTrendVelocities(nil, testTimestamp())
	if !errors.Is(err, ErrNilMetrics) {
		t.Fatalf("err = %v, want ErrNilMetrics", err)
	}
}

func TestVelocityTracksLinearTrend(t *testing.T) {
	u := NewBlendedVelocityUpdater(DefaultTrendConfig(), nil)

	// A steady 5 units/minute climb: once the regression kicks in, the
	// blended estimate must stay on the true slope.
	ts := testTimestamp()
	var out map[string]float64
	for i := 0; i < 10; i++ {
		out = mustVelocities(t, u, map[string]float64{"rps": 100 + 5*float64(i)}, ts.Add(time.Duration(i)*time.Minute))
	}
	if got := out["rps"]; math.Abs(got-5) > 0.5 {
		t.Errorf("velocity on linear trend = %v, want ~5", got)
	}
}

func TestVelocitySignConflictPrefersRecentDelta(t *testing.T) {
	u := NewBlendedVelocityUpdater(DefaultTrendConfig(), nil)

	// A long climb followed by a sharp reversal: the stale positive slope
	// must not dilute the negative two-point delta.
	ts := testTimestamp()
	for i := 0; i < 10; i++ {
		mustVelocities(t, u, map[string]float64{"rps": 10 * float64(i)}, ts.Add(time.Duration(i)*time.Minute))
	}
	out := mustVelocities(t, u, map[string]float64{"rps": 0}, ts.Add(10*time.Minute))

	if got := out["rps"]; math.Abs(got-(-90)) > 1e-9 {
		t.Errorf("velocity after reversal = %v, want -90", got)
	}
}

func TestVelocityClearHistory(t *testing.T) {
	u := NewBlendedVelocityUpdater(DefaultTrendConfig(), nil)

	ts := testTimestamp()
	mustVelocities(t, u, map[string]float64{"cpu": 50}, ts)
	u.ClearHistory()
	if got := u.TrackedMetrics(); got != 0 {
		t.Fatalf("TrackedMetrics after clear = %d, want 0", got)
	}

	out := mustVelocities(t, u, map[string]float64{"cpu": 500}, ts.Add(time.Minute))
	if got := out["cpu"]; got != 0 {
		t.Errorf("velocity after clear = %v, want 0 (first observation)", got)
	}
}

func mustVelocities(t *testing.T, u TrendVelocityUpdater, metrics map[string]float64, ts time.Time) map[string]float64 {
	t.Helper()
	out, err := u.UpdateTrendVelocities(metrics, ts)
	if err != nil {
		t.Fatalf("UpdateTrendVelocities: %v", err)
	}
	return out
}
