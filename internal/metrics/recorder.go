package metrics

import "time"

// UnitOutcome enumerates per-plugin build result categories for counters.
type UnitOutcome string

const (
	OutcomeSuccess UnitOutcome = "success"
	OutcomeFailure UnitOutcome = "failure"
)

// Recorder defines observability hooks for the build scheduler and the
// dev-sync broadcaster. Implementations may forward to Prometheus,
// OpenTelemetry, etc. The NoopRecorder is used when metrics are not
// configured, allowing optional injection.
type Recorder interface {
	ObserveBatchDuration(d time.Duration)
	IncBatchOutcome(outcome string) // outcome: success|failed|canceled
	IncUnitOutcome(outcome UnitOutcome)
	IncStaleResponse()
	SetInFlight(n int)
	SetLiveClients(n int)
	SetTrackedIdentities(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBatchDuration(time.Duration) {}
func (NoopRecorder) IncBatchOutcome(string)             {}
func (NoopRecorder) IncUnitOutcome(UnitOutcome)         {}
func (NoopRecorder) IncStaleResponse()                  {}
func (NoopRecorder) SetInFlight(int)                    {}
func (NoopRecorder) SetLiveClients(int)                 {}
func (NoopRecorder) SetTrackedIdentities(int)           {}
