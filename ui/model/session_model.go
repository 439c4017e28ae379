package model

import (
	"time"

	"github.com/soocke/framering-go/domain/capture"
)

// SessionModel tracks the current recording duration, the accumulated active
// time and the latest ring statistics. It is decoupled from the UI; presenters
// should poll Values() and update views. The zero value is ready to use.
type SessionModel struct {
	active              bool
	captureStart        time.Time
	lastSessionDuration time.Duration
	accumulated         time.Duration

	stats      capture.Stats
	statsAt    time.Time
	commitRate float64
}

// NewSessionModel returns a pointer to a ready-to-use SessionModel.
func NewSessionModel() *SessionModel { return &SessionModel{} }

// OnTick updates the model using the current recording state and timestamp.
// Call periodically (for example, from a presenter tick).
func (m *SessionModel) OnTick(recording bool, now time.Time) {
	if m == nil {
		return
	}
	if recording {
		if !m.active { // transition off -> on
			m.active = true
			m.captureStart = now
			m.lastSessionDuration = 0
			m.stats = capture.Stats{}
			m.statsAt = time.Time{}
			m.commitRate = 0
		}
		m.lastSessionDuration = now.Sub(m.captureStart)
	} else if m.active { // transition on -> off
		m.lastSessionDuration = now.Sub(m.captureStart)
		m.accumulated += m.lastSessionDuration
		m.active = false
	}
}

// Values returns the current session duration and the total accumulated duration.
// The total includes the ongoing session when active.
func (m *SessionModel) Values() (session, total time.Duration) {
	if m == nil {
		return 0, 0
	}
	session = m.lastSessionDuration
	total = m.accumulated
	if m.active {
		total += session
	}
	return
}

// Record stores a stats sample and derives the commit rate from the previous
// sample of the same session.
func (m *SessionModel) Record(st capture.Stats, now time.Time) {
	if m == nil {
		return
	}
	if !m.statsAt.IsZero() && now.After(m.statsAt) && st.Ring.Committed >= m.stats.Ring.Committed {
		m.commitRate = float64(st.Ring.Committed-m.stats.Ring.Committed) / now.Sub(m.statsAt).Seconds()
	}
	m.stats = st
	m.statsAt = now
}

// Stats returns the latest sample and the commit rate in frames per second.
func (m *SessionModel) Stats() (capture.Stats, float64) {
	if m == nil {
		return capture.Stats{}, 0
	}
	return m.stats, m.commitRate
}
