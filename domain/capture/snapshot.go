package capture

import (
	"sync"
	"time"
)

// TimeRange bounds the frames selected by a snapshot. Missing bounds are
// open. A range with Start > End selects nothing.
type TimeRange struct {
	Start, End       time.Duration
	HasStart, HasEnd bool
}

// SnapshotOption narrows the frames a snapshot pins.
type SnapshotOption func(*TimeRange)

// WithStart excludes frames captured before t.
func WithStart(t time.Duration) SnapshotOption {
	return func(r *TimeRange) { r.Start, r.HasStart = t, true }
}

// WithEnd excludes frames captured after t.
func WithEnd(t time.Duration) SnapshotOption {
	return func(r *TimeRange) { r.End, r.HasEnd = t, true }
}

// WithRange selects frames captured within [start, end].
func WithRange(start, end time.Duration) SnapshotOption {
	return func(r *TimeRange) {
		r.Start, r.HasStart = start, true
		r.End, r.HasEnd = end, true
	}
}

// Snapshot is an immutable, pinned view over frames retained by a ring when it
// was opened. Frames committed afterwards never appear, and pinned frames are
// neither evicted nor freed until Close. Index 0 is the newest frame of the
// snapshot.
//
// A Snapshot is safe for concurrent readers; Close must not race with reads
// whose FrameView.Data is still in use.
type Snapshot struct {
	ring   *Ring
	frames []*Frame
	rng    TimeRange
	window time.Duration

	mu      sync.RWMutex
	closed  bool
	onClose func()
}

// OpenSnapshot pins the frames of ring that fall inside the requested range,
// or every retained frame when no option is given.
func OpenSnapshot(ring *Ring, opts ...SnapshotOption) *Snapshot {
	var rng TimeRange
	for _, opt := range opts {
		opt(&rng)
	}
	return &Snapshot{ring: ring, frames: ring.pinRange(rng), rng: rng, window: ring.window}
}

// Len returns the number of pinned frames; zero after Close.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.frames)
}

// Range returns the requested range.
func (s *Snapshot) Range() TimeRange { return s.rng }

// Frame returns the index-th newest pinned frame. Data aliases the frame's
// pixels and is valid until Close.
func (s *Snapshot) Frame(index int) (FrameView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || index < 0 || index >= len(s.frames) {
		return FrameView{}, false
	}
	f := s.frames[index]
	return f.view(f.data), true
}

// FrameAt returns the pinned frame with the greatest timestamp <= t and its
// index.
func (s *Snapshot) FrameAt(t time.Duration) (FrameView, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return FrameView{}, -1, false
	}
	// frames are newest first: find the first with ts <= t.
	for i, f := range s.frames {
		if f.ts <= t {
			return f.view(f.data), i, true
		}
	}
	return FrameView{}, -1, false
}

// IndexByAge returns the index of the frame whose age relative to the newest
// pinned frame is closest to age, or -1 when the snapshot is empty. Negative
// ages are treated as zero and frames older than the retention window are
// ignored.
func (s *Snapshot) IndexByAge(age time.Duration) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return -1
	}
	return indexByAge(s.frames, age, s.window)
}

// FrameByAge is IndexByAge followed by Frame.
func (s *Snapshot) FrameByAge(age time.Duration) (FrameView, bool) {
	i := s.IndexByAge(age)
	if i < 0 {
		return FrameView{}, false
	}
	return s.Frame(i)
}

// Close releases the pins. It is safe to call more than once.
func (s *Snapshot) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	frames := s.frames
	s.frames = nil
	s.mu.Unlock()
	s.ring.unpin(frames)
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// indexByAge picks, from newest-first frames, the one whose distance from
// frames[0] best matches age.
func indexByAge(newestFirst []*Frame, age, window time.Duration) int {
	if len(newestFirst) == 0 {
		return -1
	}
	if age < 0 {
		age = 0
	}
	latest := newestFirst[0].ts
	best, bestErr := -1, time.Duration(-1)
	for i, f := range newestFirst {
		a := latest - f.ts
		if window > 0 && a > window {
			break
		}
		d := a - age
		if d < 0 {
			d = -d
		}
		if best < 0 || d < bestErr {
			best, bestErr = i, d
		}
	}
	return best
}
