// Package metrics defines the recorder used by the payment gate. The noop
// recorder is the default; the Prometheus recorder is wired in by the
// server binary.
package metrics

import "time"

// Recorder records gate activity.
type Recorder interface {
	// IncVerification counts a verification outcome by verdict status.
	IncVerification(status, network string)

	// ObserveLatency records the duration of a gate operation.
	ObserveLatency(operation string, d time.Duration, network string)
}

// Noop discards all measurements.
type Noop struct{}

func (Noop) IncVerification(string, string)               {}
func (Noop) ObserveLatency(string, time.Duration, string) {}
