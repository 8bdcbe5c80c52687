package trendcore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TrendMetrics is optional self-instrumentation for the analyzer. It only
// registers collectors; exposing them is the embedding process's concern.
// All methods are safe on a nil receiver, so instrumentation stays opt-in.
type TrendMetrics struct {
	analysesTotal     prometheus.Counter
	degradedTotal     prometheus.Counter
	anomaliesDetected *prometheus.CounterVec
	insightsGenerated *prometheus.CounterVec
	analysisDuration  prometheus.Histogram
}

// NewTrendMetrics registers the analyzer collectors with reg.
func NewTrendMetrics(reg prometheus.Registerer) *TrendMetrics {
	factory := promauto.With(reg)
	return &TrendMetrics{
		analysesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "trend_analyses_total",
			Help: "Total number of analyzed metric batches",
		}),
		degradedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "trend_analyses_degraded_total",
			Help: "Analyses that fell back to basic insights only",
		}),
		anomaliesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trend_anomalies_detected_total",
			Help: "Total number of anomalies detected",
		}, []string{"method", "severity"}),
		insightsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trend_insights_generated_total",
			Help: "Total number of insights generated",
		}, []string{"severity"}),
		analysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trend_analysis_duration_seconds",
			Help:    "Batch analysis latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
		}),
	}
}

func (m *TrendMetrics) observeAnalysis(result *TrendAnalysisResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.analysesTotal.Inc()
	m.analysisDuration.Observe(elapsed.Seconds())
	m.observeAnomalies(result.Anomalies)
	for _, insight := range result.Insights {
		m.insightsGenerated.WithLabelValues(insight.Severity.String()).Inc()
	}
}

func (m *TrendMetrics) observeAnomalies(anomalies []MetricAnomaly) {
	if m == nil {
		return
	}
	for _, anomaly := range anomalies {
		m.anomaliesDetected.WithLabelValues(anomaly.Method, anomaly.Severity.String()).Inc()
	}
}

func (m *TrendMetrics) observeDegraded() {
	if m == nil {
		return
	}
	m.degradedTotal.Inc()
}
