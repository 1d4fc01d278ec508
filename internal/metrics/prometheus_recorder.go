package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	stageDuration *prom.HistogramVec
	buildDuration prom.Histogram
	docResults    *prom.CounterVec
	diagnostics   *prom.CounterVec
	buildOutcome  *prom.CounterVec
	invalidations prom.Counter
	docsTracked   prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "docscope",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "docscope",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		})
		pr.docResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docscope",
			Name:      "document_results_total",
			Help:      "Processed document counts by outcome",
		}, []string{"result"})
		pr.diagnostics = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docscope",
			Name:      "diagnostics_total",
			Help:      "Validation diagnostics by code and severity",
		}, []string{"code", "severity"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docscope",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.invalidations = prom.NewCounter(prom.CounterOpts{
			Namespace: "docscope",
			Name:      "cache_invalidations_total",
			Help:      "Cache entries invalidated across all cascades",
		})
		pr.docsTracked = prom.NewGauge(prom.GaugeOpts{
			Namespace: "docscope",
			Name:      "documents_tracked",
			Help:      "Documents referenced by the manifest in the last build",
		})
		reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.docResults, pr.diagnostics, pr.buildOutcome, pr.invalidations, pr.docsTracked)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDocumentResult(result ResultLabel) {
	if p == nil || p.docResults == nil {
		return
	}
	p.docResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncDiagnostic(code, severity string) {
	if p == nil || p.diagnostics == nil {
		return
	}
	p.diagnostics.WithLabelValues(code, severity).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncInvalidations(n int) {
	if p == nil || p.invalidations == nil {
		return
	}
	p.invalidations.Add(float64(n))
}

func (p *PrometheusRecorder) SetDocumentsTracked(n int) {
	if p == nil || p.docsTracked == nil {
		return
	}
	p.docsTracked.Set(float64(n))
}
