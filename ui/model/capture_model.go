package model

import (
	"sync/atomic"
	"time"
)

// CaptureModel tracks whether recording is enabled and which retained frame
// the preview shows. The zero value is disabled, live and usable.
// Concurrency-safe via atomics because UI callbacks and presenter ticks may race.
type CaptureModel struct {
	enabled atomic.Bool
	age     atomic.Int64 // preview offset behind the newest frame, ns
	lastSeq atomic.Uint64
	shown   atomic.Bool
}

// Enabled reports whether recording is currently enabled.
func (m *CaptureModel) Enabled() bool {
	if m == nil {
		return false
	}
	return m.enabled.Load()
}

// SetEnabled stores the enabled flag. Any transition returns the preview to
// the live frame.
func (m *CaptureModel) SetEnabled(b bool) {
	if m == nil {
		return
	}
	if m.enabled.Swap(b) == b {
		return
	}
	m.age.Store(0)
	m.shown.Store(false)
}

// Age returns how far behind the newest frame the preview is.
func (m *CaptureModel) Age() time.Duration {
	if m == nil {
		return 0
	}
	return time.Duration(m.age.Load())
}

// StepAge moves the preview by delta, clamped to [0, max], and returns the
// new age.
func (m *CaptureModel) StepAge(delta, max time.Duration) time.Duration {
	if m == nil {
		return 0
	}
	age := time.Duration(m.age.Load()) + delta
	if age > max {
		age = max
	}
	if age < 0 {
		age = 0
	}
	m.age.Store(int64(age))
	return age
}

// Observe records seq as the frame on screen and reports whether it differs
// from the previous one.
func (m *CaptureModel) Observe(seq uint64) bool {
	if m == nil {
		return false
	}
	prev := m.lastSeq.Swap(seq)
	first := !m.shown.Swap(true)
	return first || prev != seq
}
