package capture

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/soocke/framering-go/domain/gpu"
)

// TargetKind distinguishes window and monitor capture.
type TargetKind int

const (
	TargetWindow TargetKind = iota
	TargetMonitor
)

func (k TargetKind) String() string {
	switch k {
	case TargetWindow:
		return "window"
	case TargetMonitor:
		return "monitor"
	default:
		return fmt.Sprintf("TargetKind(%d)", int(k))
	}
}

// Target identifies what a stream captures. Handle is an OS window or
// monitor handle.
type Target struct {
	Kind   TargetKind
	Handle uintptr
}

func (t Target) String() string { return fmt.Sprintf("%s:%#x", t.Kind, t.Handle) }

// Backend resolves targets into sources and provides the device sessions
// read back with.
type Backend interface {
	Device() gpu.Device
	Validate(t Target) error
	NewSource(t Target, opts Options) (Source, error)
}

// Stream is a capture target opened with a set of options. Each session it
// creates gets its own source, pool and ring.
type Stream struct {
	id      string
	logger  *slog.Logger
	backend Backend
	target  Target
	opts    Options

	mu       sync.Mutex
	closed   bool
	sessions []*Session
}

// OpenWindow opens a stream capturing the window identified by hwnd.
func OpenWindow(logger *slog.Logger, backend Backend, hwnd uintptr, opts Options) (*Stream, error) {
	return open(logger, backend, Target{Kind: TargetWindow, Handle: hwnd}, opts)
}

// OpenMonitor opens a stream capturing the monitor identified by hmon.
func OpenMonitor(logger *slog.Logger, backend Backend, hmon uintptr, opts Options) (*Stream, error) {
	return open(logger, backend, Target{Kind: TargetMonitor, Handle: hmon}, opts)
}

func open(logger *slog.Logger, backend Backend, t Target, opts Options) (*Stream, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrInvalidConfiguration)
	}
	if t.Handle == 0 {
		return nil, fmt.Errorf("%w: %s handle is zero", ErrInvalidTarget, t.Kind)
	}
	if err := backend.Validate(t); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTarget, t, err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	id := uuid.NewString()
	s := &Stream{
		id:      id,
		logger:  logger.With("stream", id),
		backend: backend,
		target:  t,
		opts:    opts,
	}
	s.logger.Info("stream.open", "target", t.String())
	return s, nil
}

// ID returns the stream's unique identifier.
func (s *Stream) ID() string { return s.id }

// Target returns the captured target.
func (s *Stream) Target() Target { return s.target }

// Options returns the options sessions are created with.
func (s *Stream) Options() Options { return s.opts }

// CreateSession returns a session already in the Started state.
func (s *Stream) CreateSession() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrUseAfterClose
	}
	src, err := s.backend.NewSource(s.target, s.opts)
	if err != nil {
		return nil, fmt.Errorf("capture: new source for %s: %w", s.target, err)
	}
	sess, err := NewSession(s.logger, s.backend.Device(), s.opts)
	if err != nil {
		return nil, err
	}
	if err := sess.Start(src); err != nil {
		return nil, err
	}
	s.sessions = append(s.sessions, sess)
	return sess, nil
}

// Sessions returns the sessions created by the stream that are not closed.
func (s *Stream) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.State() != StateClosed {
			out = append(out, sess)
		}
	}
	return out
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close closes every session created by the stream. It is idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = nil
	s.mu.Unlock()

	var firstErr error
	for _, sess := range sessions {
		if err := sess.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.logger.Info("stream.close", "target", s.target.String(), "sessions", len(sessions))
	return firstErr
}
