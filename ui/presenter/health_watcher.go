package presenter

import (
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// HealthWatcher polls the recording session for a fatal error while
// recording runs. The failure is picked up by the update loop on the UI
// thread, never delivered from the polling goroutine.
type HealthWatcher struct {
	Logger   *slog.Logger
	Err      func() error
	interval time.Duration
	running  atomic.Bool
	done     chan struct{}
	failure  atomic.Pointer[error]
}

// NewHealthWatcher constructs a watcher polling errFn.
func NewHealthWatcher(logger *slog.Logger, errFn func() error) *HealthWatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HealthWatcher{Logger: logger, Err: errFn, interval: 250 * time.Millisecond}
}

// OnRecording starts polling when recording begins and stops it when
// recording ends.
func (w *HealthWatcher) OnRecording(recording bool) {
	if w == nil {
		return
	}
	if recording {
		w.start()
		return
	}
	w.stop()
}

// Failure returns and clears the error seen since the last call.
func (w *HealthWatcher) Failure() error {
	if w == nil {
		return nil
	}
	if p := w.failure.Swap(nil); p != nil {
		return *p
	}
	return nil
}

func (w *HealthWatcher) start() {
	if w.running.Swap(true) {
		return
	}
	w.done = make(chan struct{})
	go w.loop(w.done)
}

func (w *HealthWatcher) stop() {
	if !w.running.Swap(false) {
		return
	}
	close(w.done)
}

func (w *HealthWatcher) loop(done chan struct{}) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if w.poll() {
				return
			}
		case <-done:
			return
		}
	}
}

// poll reports whether a failure was recorded.
func (w *HealthWatcher) poll() bool {
	if w.Err == nil {
		return false
	}
	err := w.Err()
	if err == nil {
		return false
	}
	w.Logger.Error("capture.failed", "error", err)
	w.failure.Store(&err)
	w.running.Store(false)
	return true
}
