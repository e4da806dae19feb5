package metrics

import "time"

// PassOutcome labels the final status of a generation pass.
type PassOutcome string

const (
	PassSuccess   PassOutcome = "success"
	PassPartial   PassOutcome = "partial"
	PassFailed    PassOutcome = "failed"
	PassCancelled PassOutcome = "cancelled"
)

// Recorder defines observability hooks for generation passes.
type Recorder interface {
	ObservePhaseDuration(phase string, d time.Duration)
	ObservePassDuration(d time.Duration)
	IncPassOutcome(outcome PassOutcome)
	AddPages(result string, n int) // result: rendered|skipped|failed
	SetTemplates(n int)
	IncRebuildRequest(reason string)
	IncReloadBroadcast(transport string)
	SetReloadClients(transport string, n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePhaseDuration(string, time.Duration) {}
func (NoopRecorder) ObservePassDuration(time.Duration)          {}
func (NoopRecorder) IncPassOutcome(PassOutcome)                 {}
func (NoopRecorder) AddPages(string, int)                       {}
func (NoopRecorder) SetTemplates(int)                           {}
func (NoopRecorder) IncRebuildRequest(string)                   {}
func (NoopRecorder) IncReloadBroadcast(string)                  {}
func (NoopRecorder) SetReloadClients(string, int)               {}
