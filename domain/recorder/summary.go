package recorder

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/soocke/framering-go/domain/capture"
)

// Summary describes the frames a snapshot pinned.
type Summary struct {
	Frames   int
	Bytes    int64
	Oldest   time.Duration
	Newest   time.Duration
	FirstSeq uint64
	LastSeq  uint64
	Width    int
	Height   int
	Stats    capture.Stats
}

// Span is the time covered by the summarized frames.
func (s Summary) Span() time.Duration { return s.Newest - s.Oldest }

func (s Summary) String() string {
	if s.Frames == 0 {
		return fmt.Sprintf("no frames retained (%d committed, %d dropped)", s.Stats.Ring.Committed, s.Stats.Dropped())
	}
	return fmt.Sprintf("%d frames #%d..#%d, %dx%d, %s over %s (t=%s..%s), %d committed, %d evicted, %d dropped",
		s.Frames, s.FirstSeq, s.LastSeq, s.Width, s.Height,
		humanize.IBytes(uint64(s.Bytes)), s.Span().Round(time.Millisecond),
		s.Oldest.Round(time.Millisecond), s.Newest.Round(time.Millisecond),
		s.Stats.Ring.Committed, s.Stats.Ring.Evicted, s.Stats.Dropped())
}

// Summarize pins every retained frame of sess and describes them.
func Summarize(sess *capture.Session) (Summary, error) {
	sum := Summary{Stats: sess.Stats()}
	err := sess.WithSnapshot(func(snap *capture.Snapshot) error {
		sum.Frames = snap.Len()
		for i := 0; i < sum.Frames; i++ {
			v, ok := snap.Frame(i)
			if !ok {
				return fmt.Errorf("recorder: snapshot frame %d missing", i)
			}
			sum.Bytes += int64(len(v.Data))
			if i == 0 {
				sum.Newest, sum.LastSeq = v.Timestamp, v.Sequence
				sum.Width, sum.Height = v.Width, v.Height
			}
			sum.Oldest, sum.FirstSeq = v.Timestamp, v.Sequence
		}
		return nil
	})
	return sum, err
}
