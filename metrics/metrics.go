// Package metrics records operational counters for the recovery and
// I/O paths and exposes them over HTTP for scraping.
package metrics

import "sync/atomic"

// Recorder is the reference lodc.Metrics sink: plain atomic counters,
// read back by the HTTP surface in httpserver.go.
type Recorder struct {
	recoverDurationMicros atomic.Uint64
	recoverRuns           atomic.Uint64
	ioErrors              atomic.Uint64
}

// NewRecorder builds an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordRecoverDuration implements lodc.Metrics.
func (r *Recorder) RecordRecoverDuration(seconds float64) {
	r.recoverDurationMicros.Store(uint64(seconds * 1e6))
	r.recoverRuns.Add(1)
}

// RecordIoError increments the I/O error counter. PsyncIoEngine does
// not call it; a caller records a failed Read/Write completion with it.
func (r *Recorder) RecordIoError() {
	r.ioErrors.Add(1)
}

// Snapshot is a point-in-time copy of every counter, safe to marshal.
type Snapshot struct {
	RecoverDurationSeconds float64 `json:"recover_duration_seconds"`
	RecoverRuns            uint64  `json:"recover_runs"`
	IoErrors               uint64  `json:"io_errors"`
}

// Snapshot returns the current counter values.
func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		RecoverDurationSeconds: float64(r.recoverDurationMicros.Load()) / 1e6,
		RecoverRuns:            r.recoverRuns.Load(),
		IoErrors:               r.ioErrors.Load(),
	}
}
