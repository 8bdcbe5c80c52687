package trendcore

import (
	"math"
	"strings"
	"testing"
	"time"
)

func averagesFor(metric string, medium float64, ts time.Time) map[string]MovingAverageData {
	return map[string]MovingAverageData{
		metric: {CurrentValue: medium, ShortMA: medium, MediumMA: medium, LongMA: medium, ExponentialMA: medium, Timestamp: ts},
	}
}

func TestIQRAnomaly(t *testing.T) {
	u := NewMultiDetectorAnomalyUpdater(DefaultTrendConfig(), nil)

	// Seed 10..100; the fences over the history including the new reading
	// come out at [-40, 160], so 200 must be flagged.
	ts := testTimestamp()
	for i := 1; i <= 10; i++ {
		value := float64(i * 10)
		u.UpdateAnomalies(map[string]float64{"latency": value}, averagesFor("latency", 55, ts), ts.Add(time.Duration(i)*time.Minute))
	}
	anomalies := u.UpdateAnomalies(map[string]float64{"latency": 200}, averagesFor("latency", 55, ts), ts.Add(11*time.Minute))

	var found *MetricAnomaly
	for i := range anomalies {
		if strings.Contains(anomalies[i].Description, "IQR anomaly") {
			found = &anomalies[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected an IQR anomaly for reading 200, got %v", anomalies)
	}
	if found.Method != methodIQR {
		t.Errorf("method = %q, want %q", found.Method, methodIQR)
	}
	if found.CurrentValue != 200 {
		t.Errorf("current value = %v, want 200", found.CurrentValue)
	}
}

func TestSpikeDetection(t *testing.T) {
	u := NewMultiDetectorAnomalyUpdater(DefaultTrendConfig(), nil)

	ts := testTimestamp()
	for i := 0; i < 5; i++ {
		u.UpdateAnomalies(map[string]float64{"rps": 100}, averagesFor("rps", 100, ts), ts.Add(time.Duration(i)*time.Minute))
	}
	anomalies := u.UpdateAnomalies(map[string]float64{"rps": 160}, averagesFor("rps", 100, ts), ts.Add(5*time.Minute))

	var found *MetricAnomaly
	for i := range anomalies {
		if strings.Contains(anomalies[i].Description, "spike detected") {
			found = &anomalies[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected a spike anomaly, got %v", anomalies)
	}
	if !strings.Contains(found.Description, "60%") {
		t.Errorf("description = %q, want mention of 60%%", found.Description)
	}
	if found.Severity != SeverityHigh {
		t.Errorf("severity = %v, want high", found.Severity)
	}
}

func TestDropDetection(t *testing.T) {
	u := NewMultiDetectorAnomalyUpdater(DefaultTrendConfig(), nil)

	ts := testTimestamp()
	for i := 0; i < 5; i++ {
		u.UpdateAnomalies(map[string]float64{"rps": 100}, averagesFor("rps", 100, ts), ts.Add(time.Duration(i)*time.Minute))
	}
	anomalies := u.UpdateAnomalies(map[string]float64{"rps": 40}, averagesFor("rps", 100, ts), ts.Add(5*time.Minute))

	var found *MetricAnomaly
	for i := range anomalies {
		if strings.Contains(anomalies[i].Description, "drop detected") {
			found = &anomalies[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected a drop anomaly, got %v", anomalies)
	}
	if !strings.Contains(found.Description, "60%") {
		t.Errorf("description = %q, want mention of 60%%", found.Description)
	}
	if found.Severity != SeverityHigh {
		t.Errorf("severity = %v, want high", found.Severity)
	}
}

func TestHighVelocityChangeDetection(t *testing.T) {
	u := NewMultiDetectorAnomalyUpdater(DefaultTrendConfig(), nil)

	ts := testTimestamp()
	u.UpdateAnomalies(map[string]float64{"rps": 100}, averagesFor("rps", 100, ts), ts)
	anomalies := u.UpdateAnomalies(map[string]float64{"rps": 260}, averagesFor("rps", 100, ts), ts.Add(time.Minute))

	var found *MetricAnomaly
	for i := range anomalies {
		if anomalies[i].Method == methodVelocity {
			found = &anomalies[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected a velocity anomaly, got %v", anomalies)
	}
	// 160% change is beyond twice the 0.5 fraction threshold.
	if found.Severity != SeverityHigh {
		t.Errorf("severity = %v, want high", found.Severity)
	}
}

func TestZScoreFallbackStdDev(t *testing.T) {
	u := NewMultiDetectorAnomalyUpdater(DefaultTrendConfig(), nil)

	// No history yet: the standard deviation falls back to a tenth of the
	// medium average, so 100 against 50 scores z = 10.
	anomalies := u.UpdateAnomalies(map[string]float64{"cpu": 100}, averagesFor("cpu", 50, testTimestamp()), testTimestamp())

	if len(anomalies) != 1 {
		t.Fatalf("anomalies = %v, want exactly the z-score finding", anomalies)
	}
	a := anomalies[0]
	if a.Method != methodZScore {
		t.Fatalf("method = %q, want %q", a.Method, methodZScore)
	}
	if math.Abs(a.Deviation-50) > 1e-9 {
		t.Errorf("deviation = %v, want 50", a.Deviation)
	}
	if math.Abs(a.ZScore-10) > 1e-9 {
		t.Errorf("z-score = %v, want 10", a.ZScore)
	}
	if a.Severity != SeverityHigh {
		t.Errorf("severity = %v, want high", a.Severity)
	}
}

func TestZeroMovingAverageYieldsNoAnomaly(t *testing.T) {
	u := NewMultiDetectorAnomalyUpdater(DefaultTrendConfig(), nil)

	anomalies := u.UpdateAnomalies(map[string]float64{"cpu": 100}, averagesFor("cpu", 0, testTimestamp()), testTimestamp())
	if len(anomalies) != 0 {
		t.Errorf("expected no anomalies with a zero moving average, got %v", anomalies)
	}
}

func TestAnomalySkipsMetricsWithoutAverages(t *testing.T) {
	u := NewMultiDetectorAnomalyUpdater(DefaultTrendConfig(), nil)

	anomalies := u.UpdateAnomalies(map[string]float64{"cpu": 100}, map[string]MovingAverageData{}, testTimestamp())
	if len(anomalies) != 0 {
		t.Errorf("expected metrics without averages to be skipped, got %v", anomalies)
	}
	if got := u.TrackedMetrics(); got != 0 {
		t.Errorf("TrackedMetrics = %d, want 0 for skipped metrics", got)
	}
}

func TestZScoreSeverityStaircase(t *testing.T) {
	cfg := DefaultTrendConfig()
	tests := []struct {
		z       float64
		want    Severity
		flagged bool
	}{
		{1.9, SeverityLow, false},
		{2.0, SeverityLow, true},
		{2.9, SeverityLow, true},
		{3.0, SeverityMedium, true},
		{5.0, SeverityHigh, true},
		{10.0, SeverityHigh, true},
		{12.0, SeverityCritical, true},
	}
	for _, tt := range tests {
		sev, flagged := zScoreSeverity(tt.z, cfg)
		if flagged != tt.flagged || (flagged && sev != tt.want) {
			t.Errorf("zScoreSeverity(%v) = %v/%v, want %v/%v", tt.z, sev, flagged, tt.want, tt.flagged)
		}
	}
}

func TestAnomalyClearHistory(t *testing.T) {
	u := NewMultiDetectorAnomalyUpdater(DefaultTrendConfig(), nil)

	ts := testTimestamp()
	u.UpdateAnomalies(map[string]float64{"cpu": 100}, averagesFor("cpu", 100, ts), ts)
	if got := u.TrackedMetrics(); got != 1 {
		t.Fatalf("TrackedMetrics = %d, want 1", got)
	}

	u.ClearHistory()
	if got := u.TrackedMetrics(); got != 0 {
		t.Fatalf("TrackedMetrics after clear = %d, want 0", got)
	}
}
