// Package metrics records per-run observations.
package metrics

import "time"

// Fetch result labels.
const (
	ResultSuccess = "success"
	ResultSoft    = "soft_failure"
)

// Recorder receives pipeline observations. Implementations must be safe for
// concurrent use; the pipeline may fan out fetches.
type Recorder interface {
	ObserveFetch(d time.Duration, ok bool)
	IncChanged()
	ObserveRun(d time.Duration, success bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveFetch(time.Duration, bool) {}
func (NoopRecorder) IncChanged()                      {}
func (NoopRecorder) ObserveRun(time.Duration, bool)   {}
