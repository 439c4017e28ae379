// Package source provides capture sources: a polling grab loop over the
// desktop (monitor and, on Windows, window targets) and a synthetic
// generator. Every source uploads its pixels through a gpu.Device texture so
// the readback pipeline sees the same shape it would from a compositor.
package source

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/soocke/framering-go/domain/capture"
	"github.com/soocke/framering-go/domain/gpu"
)

const grabStatsLogInterval = 5 * time.Second

// ErrAlreadyRunning is returned when starting a running source.
var ErrAlreadyRunning = errors.New("source: already running")

// GrabFunc produces one frame. A nil texture with a nil error skips the tick.
type GrabFunc func() (gpu.Texture, error)

// GrabStats summarises grab loop behaviour for instrumentation.
type GrabStats struct {
	Grabs      uint64
	Skipped    uint64
	AvgGrab    time.Duration
	LastGrab   time.Time
	LastWidth  int
	LastHeight int
}

// GrabSource polls a GrabFunc at a fixed rate and hands every texture to the
// frame handler. Timestamps are measured from Start.
type GrabSource struct {
	name     string
	logger   *slog.Logger
	grab     GrabFunc
	interval time.Duration
	format   gputypes.TextureFormat

	width  atomic.Int64
	height atomic.Int64

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	grabs     atomic.Uint64
	skipped   atomic.Uint64
	grabNanos atomic.Uint64
	lastGrab  atomic.Int64
}

// NewGrabSource returns a stopped source delivering frames of format every
// interval. width and height are the expected frame size, or zeros.
func NewGrabSource(logger *slog.Logger, name string, grab GrabFunc, interval time.Duration, format gputypes.TextureFormat, width, height int) *GrabSource {
	if interval <= 0 {
		interval = time.Second / capture.DefaultTargetFPS
	}
	s := &GrabSource{
		name:     name,
		logger:   logger,
		grab:     grab,
		interval: interval,
		format:   format,
	}
	s.width.Store(int64(width))
	s.height.Store(int64(height))
	return s
}

// Name identifies the source in logs.
func (s *GrabSource) Name() string { return s.name }

// Size returns the size of the last delivered frame, or the expected size
// before the first one.
func (s *GrabSource) Size() (int, int) { return int(s.width.Load()), int(s.height.Load()) }

// Format returns the delivered pixel format.
func (s *GrabSource) Format() gputypes.TextureFormat { return s.format }

// Running reports whether the grab loop is active.
func (s *GrabSource) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the grab loop.
func (s *GrabSource) Start(h capture.FrameHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.loop(h, s.stop)
	return nil
}

// Stop ends the grab loop and waits for the current tick to finish.
func (s *GrabSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// Stats returns grab counters.
func (s *GrabSource) Stats() GrabStats {
	grabs := s.grabs.Load()
	var avg time.Duration
	if grabs > 0 {
		avg = time.Duration(s.grabNanos.Load() / grabs)
	}
	var last time.Time
	if n := s.lastGrab.Load(); n != 0 {
		last = time.Unix(0, n)
	}
	w, h := s.Size()
	return GrabStats{
		Grabs:      grabs,
		Skipped:    s.skipped.Load(),
		AvgGrab:    avg,
		LastGrab:   last,
		LastWidth:  w,
		LastHeight: h,
	}
}

func (s *GrabSource) loop(h capture.FrameHandler, stop <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	logTicker := time.NewTicker(grabStatsLogInterval)
	defer logTicker.Stop()

	origin := time.Now()
	for {
		select {
		case <-stop:
			return
		case <-logTicker.C:
			s.logStats()
			continue
		case <-ticker.C:
		}

		start := time.Now()
		tex, err := s.grab()
		if err != nil || tex == nil {
			s.skipped.Add(1)
			if err != nil && s.logger != nil {
				s.logger.Error("grab", "source", s.name, "error", err)
			}
			continue
		}
		s.grabNanos.Add(uint64(time.Since(start).Nanoseconds()))
		s.grabs.Add(1)
		s.lastGrab.Store(start.UnixNano())
		w, ht := tex.Width(), tex.Height()
		s.width.Store(int64(w))
		s.height.Store(int64(ht))
		h(tex, start.Sub(origin), w, ht)
	}
}

func (s *GrabSource) logStats() {
	if s.logger == nil {
		return
	}
	st := s.Stats()
	s.logger.Debug("grab.stats",
		"source", s.name,
		"grabs", st.Grabs,
		"skipped", st.Skipped,
		"avg_grab", st.AvgGrab,
		"size", [2]int{st.LastWidth, st.LastHeight},
	)
}

var _ capture.Source = (*GrabSource)(nil)
