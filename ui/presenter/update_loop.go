package presenter

import "time"

// Loop aggregates feature presenters and drives periodic updates.
//
// It calls Tick/Refresh on the sub-presenters, disables recording when the
// health watcher saw a failure and invokes a scheduler callback. The zero
// value is usable (methods are nil-safe).
type Loop struct {
	Session  *SessionPresenter
	Preview  *PreviewPresenter
	Capture  *CapturePresenter
	Health   *HealthWatcher
	Schedule func()
}

func NewLoop(sess *SessionPresenter, preview *PreviewPresenter, capture *CapturePresenter, health *HealthWatcher, schedule func()) *Loop {
	return &Loop{Session: sess, Preview: preview, Capture: capture, Health: health, Schedule: schedule}
}

func (l *Loop) Tick() {
	if l == nil {
		return
	}
	now := time.Now()
	if err := l.Health.Failure(); err != nil && l.Capture != nil {
		l.Capture.Fail(err)
	}
	if l.Session != nil {
		l.Session.Tick(now)
	}
	if l.Preview != nil {
		l.Preview.Refresh()
	}
	if l.Schedule != nil {
		l.Schedule()
	}
}
