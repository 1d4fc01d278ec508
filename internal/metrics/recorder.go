// Package metrics defines the observability hooks of the build pipeline and
// a Prometheus-backed implementation. All hooks are safe on nil receivers so
// callers can inject metrics optionally.
package metrics

import "time"

// ResultLabel enumerates per-document result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultWarning ResultLabel = "warning"
	ResultFailed  ResultLabel = "failed"
)

// Recorder defines observability hooks for build and stage metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncDocumentResult(result ResultLabel)
	IncDiagnostic(code string, severity string)
	IncBuildOutcome(outcome string) // outcome: success|warning|failed
	IncInvalidations(n int)
	SetDocumentsTracked(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncDocumentResult(ResultLabel)              {}
func (NoopRecorder) IncDiagnostic(string, string)               {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) IncInvalidations(int)                       {}
func (NoopRecorder) SetDocumentsTracked(int)                    {}
