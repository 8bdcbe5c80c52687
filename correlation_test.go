package trendcore

import (
	"testing"
	"time"
)

func TestCorrelationGroupsCoMovingMetrics(t *testing.T) {
	u := NewPearsonCorrelationUpdater(DefaultTrendConfig(), nil)

	// a and b accelerate together; c oscillates independently.
	ts := testTimestamp()
	var groups map[string][]string
	for i := 0; i < 10; i++ {
		x := float64(i)
		groups = u.UpdateCorrelations(map[string]float64{
			"a": x * x,
			"b": 2 * x * x,
			"c": float64(i % 2),
		}, ts.Add(time.Duration(i)*time.Minute))
	}

	if !containsString(groups["a"], "b") {
		t.Errorf("expected a to correlate with b, got %v", groups["a"])
	}
	if !containsString(groups["b"], "a") {
		t.Errorf("expected b to correlate with a, got %v", groups["b"])
	}
	if containsString(groups["a"], "c") {
		t.Errorf("did not expect a to correlate with c, got %v", groups["a"])
	}
}

func TestCorrelationRequiresMinimumHistory(t *testing.T) {
	u := NewPearsonCorrelationUpdater(DefaultTrendConfig(), nil)

	ts := testTimestamp()
	var groups map[string][]string
	for i := 0; i < 3; i++ {
		groups = u.UpdateCorrelations(map[string]float64{
			"a": float64(i),
			"b": float64(i),
		}, ts.Add(time.Duration(i)*time.Minute))
	}

	if len(groups) != 0 {
		t.Errorf("expected no groups below the minimum history, got %v", groups)
	}
}

func TestCorrelationFlatSeriesNotGrouped(t *testing.T) {
	u := NewPearsonCorrelationUpdater(DefaultTrendConfig(), nil)

	// Zero variance on both sides: correlation is undefined, not a match.
	ts := testTimestamp()
	var groups map[string][]string
	for i := 0; i < 10; i++ {
		groups = u.UpdateCorrelations(map[string]float64{
			"a": 5,
			"b": 5,
		}, ts.Add(time.Duration(i)*time.Minute))
	}

	if len(groups) != 0 {
		t.Errorf("expected flat series to stay ungrouped, got %v", groups)
	}
}

func TestCorrelationClearHistory(t *testing.T) {
	u := NewPearsonCorrelationUpdater(DefaultTrendConfig(), nil)

	u.UpdateCorrelations(map[string]float64{"a": 1, "b": 2}, testTimestamp())
	if got := u.TrackedMetrics(); got != 2 {
		t.Fatalf("TrackedMetrics = %d, want 2", got)
	}

	u.ClearHistory()
	if got := u.TrackedMetrics(); got != 0 {
		t.Fatalf("TrackedMetrics after clear = %d, want 0", got)
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
