package presenter

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/soocke/framering-go/domain/capture"
	"github.com/soocke/framering-go/ui/model"
)

// CaptureEnabledModel reports whether capture is enabled.
type CaptureEnabledModel interface{ Enabled() bool }

// SessionView displays formatted durations and the ring summary.
type SessionView interface {
	SetSession(session, total time.Duration)
	SetRing(summary string)
}

// SessionPresenter formats durations and ring statistics from the model to
// the view.
type SessionPresenter struct {
	sess  *model.SessionModel
	cap   CaptureEnabledModel
	stats func() (capture.Stats, bool)
	view  SessionView
}

// NewSessionPresenter returns a new SessionPresenter. stats reports false
// while nothing is recording.
func NewSessionPresenter(sess *model.SessionModel, cap CaptureEnabledModel, stats func() (capture.Stats, bool), view SessionView) *SessionPresenter {
	return &SessionPresenter{sess: sess, cap: cap, stats: stats, view: view}
}

// Tick advances the session model and pushes values to the view.
func (p *SessionPresenter) Tick(now time.Time) {
	if p == nil || p.sess == nil || p.cap == nil || p.view == nil {
		return
	}
	recording := p.cap.Enabled()
	p.sess.OnTick(recording, now)
	s, t := p.sess.Values()
	p.view.SetSession(s, t)
	if !recording || p.stats == nil {
		return
	}
	st, ok := p.stats()
	if !ok {
		return
	}
	p.sess.Record(st, now)
	st, rate := p.sess.Stats()
	p.view.SetRing(RingSummary(st, rate))
}

// RingSummary renders stats as a single status line.
func RingSummary(st capture.Stats, rate float64) string {
	span := st.Ring.NewestTimestamp - st.Ring.OldestTimestamp
	if st.Ring.Frames == 0 {
		span = 0
	}
	return fmt.Sprintf("Ring: %d frames, %s of %s, %s, %.1f fps, %d dropped",
		st.Ring.Frames,
		humanize.IBytes(uint64(max(st.Ring.Bytes, 0))),
		humanize.IBytes(uint64(max(st.Ring.BudgetBytes, 0))),
		span.Round(100*time.Millisecond),
		rate,
		st.Dropped())
}
