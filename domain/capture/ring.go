package capture

import (
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"
)

// RingStats is a point-in-time view of ring occupancy and counters.
type RingStats struct {
	Frames          int
	Bytes           int64
	BudgetBytes     int64
	CeilingBytes    int64
	OldestTimestamp time.Duration
	NewestTimestamp time.Duration

	// DetachedFrames are evicted frames kept alive by snapshot pins.
	DetachedFrames int
	DetachedBytes  int64

	Committed         uint64
	Evicted           uint64
	DroppedOutOfOrder uint64
	DroppedOversize   uint64
	DroppedCeiling    uint64
	DroppedStale      uint64
}

// Ring is a time-ordered, memory-budgeted store of committed frames.
//
// Frames are kept oldest first. Every mutation (commit, evict, pin, unpin)
// happens under mu, which is never held across device calls.
type Ring struct {
	mu      sync.Mutex
	frames  []*Frame
	total   int64
	budget  int64
	ceiling int64
	window  time.Duration
	last    time.Duration
	hasLast bool
	seq     uint64
	gen     uint64
	closed  bool
	logger  *slog.Logger

	detached      int
	detachedBytes int64

	committed         uint64
	evicted           uint64
	droppedOutOfOrder uint64
	droppedOversize   uint64
	droppedCeiling    uint64
	droppedStale      uint64
}

// NewRing creates a ring retaining at most budget bytes and roughly window of
// history. Commits beyond ceilingFactor*budget are dropped while pinned
// frames prevent eviction.
func NewRing(logger *slog.Logger, budget int64, window time.Duration, ceilingFactor float64) *Ring {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if ceilingFactor < 1 {
		ceilingFactor = DefaultHardCeilingFactor
	}
	return &Ring{
		budget:  budget,
		ceiling: int64(float64(budget) * ceilingFactor),
		window:  window,
		logger:  logger,
	}
}

// Commit appends f and evicts old frames. It returns false when the frame was
// dropped: the ring is closed, the frame was read back before the last Flush,
// the timestamp is out of order, the frame is larger than the whole budget, or
// the hard ceiling would be exceeded. Dropped frames are freed.
func (r *Ring) Commit(f *Frame) bool {
	size := int64(f.Size())

	r.mu.Lock()
	if r.closed {
		f.free()
		r.mu.Unlock()
		return false
	}
	if f.gen < r.gen {
		r.droppedStale++
		gen := r.gen
		f.free()
		r.mu.Unlock()
		r.logger.Debug("ring.drop", "reason", "stale", "ts", f.ts, "frame_gen", f.gen, "gen", gen)
		return false
	}
	if r.hasLast && f.ts < r.last {
		r.droppedOutOfOrder++
		last := r.last
		f.free()
		r.mu.Unlock()
		r.logger.Debug("ring.drop", "reason", "out_of_order", "ts", f.ts, "last", last)
		return false
	}
	if size > r.budget {
		r.droppedOversize++
		f.free()
		r.mu.Unlock()
		r.logger.Debug("ring.drop", "reason", "oversize", "size", size, "budget", r.budget)
		return false
	}

	r.frames = append(r.frames, f)
	r.total += size
	r.evictLocked()

	if r.total > r.ceiling {
		r.frames = r.frames[:len(r.frames)-1]
		r.total -= size
		r.droppedCeiling++
		f.free()
		total := r.total
		r.mu.Unlock()
		r.logger.Debug("ring.drop", "reason", "ceiling", "retained", total, "ceiling", r.ceiling)
		return false
	}

	r.seq++
	f.seq = r.seq
	r.last = f.ts
	r.hasLast = true
	r.committed++
	r.mu.Unlock()
	return true
}

// evictLocked drops the oldest unpinned frames while the ring is over budget
// or spans more than the window. The newest frame is never evicted here.
func (r *Ring) evictLocked() {
	if len(r.frames) < 2 {
		return
	}
	newest := r.frames[len(r.frames)-1]
	for i := 0; i < len(r.frames)-1; {
		f := r.frames[i]
		if r.total <= r.budget && newest.ts-f.ts <= r.window {
			return
		}
		if f.pins > 0 {
			i++
			continue
		}
		r.removeLocked(i)
	}
}

func (r *Ring) removeLocked(i int) {
	f := r.frames[i]
	r.frames = slices.Delete(r.frames, i, i+1)
	r.total -= int64(f.Size())
	r.evicted++
	f.evicted = true
	if f.pins == 0 {
		f.free()
		return
	}
	r.detached++
	r.detachedBytes += int64(f.Size())
}

// Flush evicts every retained frame and starts a new generation: frames
// stamped with an older generation are dropped on Commit. Pinned frames stay
// readable through their snapshots and are freed on the last unpin.
func (r *Ring) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	for len(r.frames) > 0 {
		r.removeLocked(len(r.frames) - 1)
	}
}

// Close flushes the ring and rejects every later commit.
func (r *Ring) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for len(r.frames) > 0 {
		r.removeLocked(len(r.frames) - 1)
	}
}

// Generation returns the number of flushes so far. Readbacks record it when
// issued so that a flush in between discards them.
func (r *Ring) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// Len returns the number of retained frames.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Bytes returns the bytes held by retained frames.
func (r *Ring) Bytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Frame returns the frame index positions back from the newest (0 = newest).
// The frame's metadata is always safe to read; its Bytes are only stable
// while it is pinned, so readers needing pixels use a Snapshot or
// Session.GetFrame.
func (r *Ring) Frame(index int) (*Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.frames) {
		return nil, false
	}
	return r.frames[len(r.frames)-1-index], true
}

// LookupByTime returns the frame with the greatest timestamp <= t and its
// index from the newest. It reports false when t precedes the oldest frame.
func (r *Ring) LookupByTime(t time.Duration) (*Frame, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := searchFrames(r.frames, t)
	if i < 0 {
		return nil, -1, false
	}
	return r.frames[i], len(r.frames) - 1 - i, true
}

// searchFrames returns the position of the last frame with ts <= t in an
// oldest-first slice, or -1.
func searchFrames(frames []*Frame, t time.Duration) int {
	return sort.Search(len(frames), func(i int) bool { return frames[i].ts > t }) - 1
}

// copyFrame copies the pixels of the frame chosen by pick. pick receives the
// retained frames oldest first and returns a position or -1. The frame is
// pinned for the duration of the copy so the ring lock is not held while
// copying.
func (r *Ring) copyFrame(pick func(frames []*Frame) int) (FrameView, bool) {
	r.mu.Lock()
	i := pick(r.frames)
	if i < 0 || i >= len(r.frames) {
		r.mu.Unlock()
		return FrameView{}, false
	}
	f := r.frames[i]
	f.pins++
	r.mu.Unlock()

	data := make([]byte, len(f.data))
	copy(data, f.data)
	v := f.view(data)

	r.unpin([]*Frame{f})
	return v, true
}

// pinRange pins every retained frame with start <= ts <= end and returns
// them newest first.
func (r *Ring) pinRange(rng TimeRange) []*Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rng.HasStart && rng.HasEnd && rng.Start > rng.End {
		return nil
	}
	var out []*Frame
	for i := len(r.frames) - 1; i >= 0; i-- {
		f := r.frames[i]
		if rng.HasEnd && f.ts > rng.End {
			continue
		}
		if rng.HasStart && f.ts < rng.Start {
			break
		}
		f.pins++
		out = append(out, f)
	}
	return out
}

// unpin releases pins taken by pinRange or copyFrame.
func (r *Ring) unpin(frames []*Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range frames {
		f.pins--
		if f.pins == 0 && f.evicted {
			r.detached--
			r.detachedBytes -= int64(f.Size())
			f.free()
		}
	}
}

// Stats returns counters and occupancy.
func (r *Ring) Stats() RingStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := RingStats{
		Frames:            len(r.frames),
		Bytes:             r.total,
		BudgetBytes:       r.budget,
		CeilingBytes:      r.ceiling,
		DetachedFrames:    r.detached,
		DetachedBytes:     r.detachedBytes,
		Committed:         r.committed,
		Evicted:           r.evicted,
		DroppedOutOfOrder: r.droppedOutOfOrder,
		DroppedOversize:   r.droppedOversize,
		DroppedCeiling:    r.droppedCeiling,
		DroppedStale:      r.droppedStale,
	}
	if len(r.frames) > 0 {
		s.OldestTimestamp = r.frames[0].ts
		s.NewestTimestamp = r.frames[len(r.frames)-1].ts
	}
	return s
}
