package capture

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/soocke/framering-go/domain/gpu"
)

const sessionStatsLogInterval = 5 * time.Second

// State is the lifecycle position of a Session.
type State int32

const (
	StateCreated State = iota
	StateStarted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Session binds one Source to a staging pool, readback pipeline and frame
// ring. Its lifecycle is Created, Started, Closed; Closed is terminal.
//
// Close does not wait for open snapshots. Frames they pin stay valid and are
// freed when the last snapshot pinning them closes.
type Session struct {
	id     string
	logger *slog.Logger
	opts   Options
	ring   *Ring
	pipe   *pipeline

	mu     sync.Mutex
	state  State
	source Source
	stop   chan struct{}

	failOnce  sync.Once
	err       atomic.Pointer[error]
	snapshots atomic.Int64
}

// NewSession validates opts and returns a session in the Created state.
func NewSession(logger *slog.Logger, device gpu.Device, opts Options) (*Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if device == nil {
		return nil, fmt.Errorf("%w: nil device", ErrInvalidConfiguration)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts = opts.withDefaults()
	id := uuid.NewString()
	logger = logger.With("session", id)

	s := &Session{
		id:     id,
		logger: logger,
		opts:   opts,
		ring:   NewRing(logger, opts.BudgetBytes(), opts.Window(), opts.HardCeilingFactor),
		state:  StateCreated,
		stop:   make(chan struct{}),
	}
	s.pipe = newPipeline(logger, device, s.ring, opts, s.fail)
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Options returns the effective options, defaults applied.
func (s *Session) Options() Options { return s.opts }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start binds src and begins accepting frames.
func (s *Session) Start(src Source) error {
	if src == nil {
		return fmt.Errorf("%w: nil source", ErrInvalidTarget)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateStarted:
		return ErrAlreadyStarted
	case StateClosed:
		return s.closedErr()
	}

	w, h := src.Size()
	if err := s.pipe.prepare(w, h, src.Format()); err != nil {
		return fmt.Errorf("capture: prepare staging pool: %w", err)
	}
	s.pipe.start()
	if err := src.Start(s.pipe.OnFrameArrived); err != nil {
		s.state = StateClosed
		s.pipe.close()
		return fmt.Errorf("capture: start source: %w", err)
	}
	s.source = src
	s.state = StateStarted
	go s.logLoop()

	s.logger.Info("session.start",
		"width", w,
		"height", h,
		"format", gpu.FormatName(src.Format()),
		"window", s.opts.Window(),
		"budget", humanize.IBytes(uint64(s.opts.BudgetBytes())),
		"fps", s.opts.TargetFPS,
		"slots", s.opts.StagingSlots,
	)
	return nil
}

// GetFrame returns a copy of the frame index positions back from the newest
// (0 = newest). ok is false when fewer frames are retained.
func (s *Session) GetFrame(index int) (FrameView, bool, error) {
	if err := s.usable(); err != nil {
		return FrameView{}, false, err
	}
	v, ok := s.ring.copyFrame(func(frames []*Frame) int {
		if index < 0 || index >= len(frames) {
			return -1
		}
		return len(frames) - 1 - index
	})
	return v, ok, nil
}

// FrameAt returns a copy of the newest frame captured at or before t.
func (s *Session) FrameAt(t time.Duration) (FrameView, bool, error) {
	if err := s.usable(); err != nil {
		return FrameView{}, false, err
	}
	v, ok := s.ring.copyFrame(func(frames []*Frame) int { return searchFrames(frames, t) })
	return v, ok, nil
}

// IndexByAge returns the index of the retained frame whose age relative to
// the newest frame is closest to age, or -1 when the ring is empty.
func (s *Session) IndexByAge(age time.Duration) (int, error) {
	if err := s.usable(); err != nil {
		return -1, err
	}
	s.ring.mu.Lock()
	defer s.ring.mu.Unlock()
	newestFirst := make([]*Frame, len(s.ring.frames))
	for i, f := range s.ring.frames {
		newestFirst[len(newestFirst)-1-i] = f
	}
	return indexByAge(newestFirst, age, s.ring.window), nil
}

// GetFrameByAge returns a copy of the frame nearest to age before the newest.
func (s *Session) GetFrameByAge(age time.Duration) (FrameView, bool, error) {
	if err := s.usable(); err != nil {
		return FrameView{}, false, err
	}
	v, ok := s.ring.copyFrame(func(frames []*Frame) int {
		newestFirst := make([]*Frame, len(frames))
		for i, f := range frames {
			newestFirst[len(frames)-1-i] = f
		}
		i := indexByAge(newestFirst, age, s.ring.window)
		if i < 0 {
			return -1
		}
		return len(frames) - 1 - i
	})
	return v, ok, nil
}

// Snapshot pins the retained frames selected by opts. The caller must Close
// it. An inverted or out-of-window range yields an empty snapshot.
func (s *Session) Snapshot(opts ...SnapshotOption) (*Snapshot, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	snap := OpenSnapshot(s.ring, opts...)
	s.snapshots.Add(1)
	snap.onClose = func() { s.snapshots.Add(-1) }
	return snap, nil
}

// WithSnapshot opens a snapshot, passes it to fn and closes it afterwards.
func (s *Session) WithSnapshot(fn func(*Snapshot) error, opts ...SnapshotOption) error {
	snap, err := s.Snapshot(opts...)
	if err != nil {
		return err
	}
	defer snap.Close()
	return fn(snap)
}

// Stats returns pipeline and ring counters.
func (s *Session) Stats() Stats {
	st := s.pipe.snapshotStats()
	st.OpenSnapshots = int(s.snapshots.Load())
	return st
}

// Err returns the fatal error that closed the session, if any.
func (s *Session) Err() error {
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Done is closed once a closed session has drained its in-flight copies and
// destroyed its staging buffers.
func (s *Session) Done() <-chan struct{} { return s.pipe.done }

// Close stops the source, stops accepting frames and flushes the ring.
// In-flight copies drain in the background. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	s.state = StateClosed
	src := s.source
	s.source = nil
	close(s.stop)
	s.mu.Unlock()

	var err error
	if src != nil {
		if serr := src.Stop(); serr != nil {
			err = fmt.Errorf("capture: stop source: %w", serr)
		}
	}
	s.pipe.close()
	if prev == StateStarted {
		s.logStats("session.close")
	}
	s.ring.Close()
	return err
}

// fail records a fatal error and closes the session.
func (s *Session) fail(err error) {
	s.failOnce.Do(func() {
		s.err.Store(&err)
		s.logger.Error("session.fatal", "error", err)
		if cerr := s.Close(); cerr != nil {
			s.logger.Warn("session.close", "error", cerr)
		}
	})
}

func (s *Session) usable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return s.closedErr()
	}
	return nil
}

func (s *Session) closedErr() error {
	if err := s.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUseAfterClose, err)
	}
	return ErrUseAfterClose
}

func (s *Session) logLoop() {
	ticker := time.NewTicker(sessionStatsLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.logStats("session.stats")
		}
	}
}

func (s *Session) logStats(msg string) {
	st := s.Stats()
	s.logger.Debug(msg,
		"frames", st.Ring.Frames,
		"retained", humanize.IBytes(uint64(st.Ring.Bytes)),
		"span", st.Ring.NewestTimestamp-st.Ring.OldestTimestamp,
		"committed", st.Ring.Committed,
		"dropped", st.Dropped(),
		"in_flight", st.InFlight,
		"avg_readback", st.AvgReadback,
		"snapshots", st.OpenSnapshots,
	)
}

// IsFatal reports whether err ends a session.
func IsFatal(err error) bool { return errors.Is(err, ErrDeviceLost) }
