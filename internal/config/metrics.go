package config

import "time"

// Call outcomes reported to Metrics.RecordCall.
const (
	OutcomeOK            = "ok"
	OutcomeExpansionErr  = "expansion_error"
	OutcomeServerClosed  = "server_closed"
	OutcomeUnexpected    = "unexpected_response"
	OutcomeProcessClosed = "process_closed"
	OutcomeThreadClosed  = "thread_closed"
	OutcomeCancelled     = "cancelled"
)

// Metrics receives observations from the supervisor. Implement this to export
// them to a monitoring system; see observability/prometheus for one.
//
// Implementations must be safe for concurrent use: RecordCall runs on caller
// goroutines, RecordRestart on the supervisor goroutine.
type Metrics interface {
	// RecordCall records one completed call of the given request kind.
	RecordCall(kind string, outcome string, duration time.Duration)

	// RecordRestart records a restart attempt of the server.
	RecordRestart(ok bool)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

// RecordCall implements Metrics.
func (NopMetrics) RecordCall(string, string, time.Duration) {}

// RecordRestart implements Metrics.
func (NopMetrics) RecordRestart(bool) {}
