// Package recorder owns the stream and session behind one recording: it
// opens them on Start with the options current at that moment and closes
// them on Stop.
package recorder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/soocke/framering-go/domain/capture"
	"github.com/soocke/framering-go/platform/metrics"
)

// ErrNotRecording is returned by lookups while no session is running.
var ErrNotRecording = errors.New("recorder: not recording")

// Exporter publishes session counters while a session runs.
type Exporter interface {
	Register(src metrics.StatsSource)
	Unregister(id string)
}

// Recorder starts and stops recordings of a single target.
type Recorder struct {
	logger   *slog.Logger
	backend  capture.Backend
	target   capture.Target
	options  func() capture.Options
	exporter Exporter

	mu      sync.Mutex
	stream  *capture.Stream
	session *capture.Session
}

// New returns a stopped recorder. options is read on every Start, so edits
// made between recordings apply to the next one. exporter may be nil.
func New(logger *slog.Logger, backend capture.Backend, target capture.Target, options func() capture.Options, exporter Exporter) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if options == nil {
		options = capture.DefaultOptions
	}
	return &Recorder{logger: logger, backend: backend, target: target, options: options, exporter: exporter}
}

// Target returns the recorded target.
func (r *Recorder) Target() capture.Target { return r.target }

// Start opens the stream and its session. Starting a running recorder is a
// no-op.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return nil
	}
	opts := r.options()
	var (
		st  *capture.Stream
		err error
	)
	switch r.target.Kind {
	case capture.TargetWindow:
		st, err = capture.OpenWindow(r.logger, r.backend, r.target.Handle, opts)
	default:
		st, err = capture.OpenMonitor(r.logger, r.backend, r.target.Handle, opts)
	}
	if err != nil {
		return fmt.Errorf("recorder: open %s: %w", r.target, err)
	}
	sess, err := st.CreateSession()
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("recorder: start %s: %w", r.target, err)
	}
	r.stream, r.session = st, sess
	if r.exporter != nil {
		r.exporter.Register(sess)
	}
	r.logger.Info("recorder.start", "target", r.target.String(), "session", sess.ID(),
		"buffer_seconds", opts.BufferSeconds, "budget_mb", opts.MemoryBudgetMB, "fps", opts.TargetFPS)
	return nil
}

// Stop closes the session and stream. Stopping a stopped recorder is a no-op.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	st, sess := r.stream, r.session
	r.stream, r.session = nil, nil
	r.mu.Unlock()
	if st == nil {
		return nil
	}
	if r.exporter != nil {
		r.exporter.Unregister(sess.ID())
	}
	err := st.Close()
	r.logger.Info("recorder.stop", "target", r.target.String(), "session", sess.ID(), "error", err)
	return err
}

// Session returns the running session or nil.
func (r *Recorder) Session() *capture.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Running reports whether a session is open.
func (r *Recorder) Running() bool { return r.Session() != nil }

// Err returns the fatal error of the running session, if any.
func (r *Recorder) Err() error {
	if s := r.Session(); s != nil {
		return s.Err()
	}
	return nil
}

// Summary summarizes the frames retained by the running session. It returns
// ErrNotRecording while stopped.
func (r *Recorder) Summary() (Summary, error) {
	s := r.Session()
	if s == nil {
		return Summary{}, ErrNotRecording
	}
	return Summarize(s)
}

// Stats returns the counters of the running session.
func (r *Recorder) Stats() (capture.Stats, bool) {
	s := r.Session()
	if s == nil {
		return capture.Stats{}, false
	}
	return s.Stats(), true
}
