package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/soocke/framering-go/domain/gpu"
)

// manualSource delivers frames only when Emit is called.
type manualSource struct {
	mu      sync.Mutex
	handler FrameHandler
	w, h    int
	stopped int
	failErr error
}

func (s *manualSource) Start(h FrameHandler) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
	return nil
}

func (s *manualSource) Stop() error {
	s.mu.Lock()
	s.handler = nil
	s.stopped++
	s.mu.Unlock()
	return nil
}

func (s *manualSource) Size() (int, int)               { return s.w, s.h }
func (s *manualSource) Format() gputypes.TextureFormat { return gputypes.TextureFormatRGBA8Unorm }

// Emit delivers a w x h frame whose bytes all equal fill.
func (s *manualSource) Emit(t *testing.T, ts time.Duration, w, h int, fill byte) {
	t.Helper()
	pix := make([]byte, w*h*4)
	for i := range pix {
		pix[i] = fill
	}
	tex, err := gpu.NewTexture(w, h, w*4, gputypes.TextureFormatRGBA8Unorm, pix)
	if err != nil {
		t.Fatalf("texture: %v", err)
	}
	s.mu.Lock()
	h2 := s.handler
	s.mu.Unlock()
	if h2 != nil {
		h2(tex, ts, w, h)
	}
}

var _ Source = (*manualSource)(nil)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func startSession(t *testing.T, dev gpu.Device, opts Options, w, h int) (*Session, *manualSource) {
	t.Helper()
	s, err := NewSession(nil, dev, opts)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	src := &manualSource{w: w, h: h}
	if err := s.Start(src); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, src
}

// emitCommitted emits one frame and waits until it has been committed.
func emitCommitted(t *testing.T, s *Session, src *manualSource, ts time.Duration, w, h int, fill byte) {
	t.Helper()
	before := s.Stats().Ring.Committed
	src.Emit(t, ts, w, h, fill)
	waitFor(t, "commit", func() bool { return s.Stats().Ring.Committed > before })
}

func TestSession_GetFrameNewestAndStride(t *testing.T) {
	s, src := startSession(t, gpu.NewSoftwareDevice(), DefaultOptions(), 4, 2)
	if _, ok, err := s.GetFrame(0); ok || err != nil {
		t.Fatalf("empty session GetFrame ok=%v err=%v", ok, err)
	}
	for i := 0; i < 3; i++ {
		emitCommitted(t, s, src, ms(i*100), 4, 2, byte(10+i))
	}
	v, ok, err := s.GetFrame(0)
	if err != nil || !ok {
		t.Fatalf("GetFrame(0) ok=%v err=%v", ok, err)
	}
	if v.Timestamp != ms(200) || v.Width != 4 || v.Height != 2 {
		t.Fatalf("frame=%+v", v)
	}
	if v.Stride != 256 || len(v.Data) != 512 {
		t.Fatalf("stride=%d len=%d want 256/512", v.Stride, len(v.Data))
	}
	for y := 0; y < v.Height; y++ {
		for x := 0; x < v.Width*4; x++ {
			if b := v.Data[y*v.Stride+x]; b != 12 {
				t.Fatalf("pixel byte (%d,%d)=%d want 12", x, y, b)
			}
		}
	}
	if _, ok, _ := s.GetFrame(3); ok {
		t.Fatalf("GetFrame(3) found a frame with 3 retained")
	}
	// the copy is independent of the ring
	v.Data[0] = 0
	if again, _, _ := s.GetFrame(0); again.Data[0] != 12 {
		t.Fatalf("GetFrame returned aliased bytes")
	}
}

func TestSession_FrameAt(t *testing.T) {
	s, src := startSession(t, gpu.NewSoftwareDevice(), DefaultOptions(), 2, 2)
	for _, ts := range []time.Duration{0, ms(100), ms(200)} {
		emitCommitted(t, s, src, ts, 2, 2, 0)
	}
	v, ok, err := s.FrameAt(ms(150))
	if err != nil || !ok || v.Timestamp != ms(100) {
		t.Fatalf("FrameAt(150ms) ts=%v ok=%v err=%v", v.Timestamp, ok, err)
	}
	if _, ok, _ := s.FrameAt(-time.Second); ok {
		t.Fatalf("FrameAt(-1s) found a frame")
	}
	if i, _ := s.IndexByAge(ms(100)); i != 1 {
		t.Fatalf("IndexByAge(100ms)=%d want 1", i)
	}
	if v, ok, _ := s.GetFrameByAge(ms(190)); !ok || v.Timestamp != 0 {
		t.Fatalf("GetFrameByAge(190ms) ts=%v", v.Timestamp)
	}
}

func TestSession_DropsWhenPoolExhausted(t *testing.T) {
	dev := gpu.NewSoftwareDevice()
	opts := DefaultOptions()
	opts.StagingSlots = 2
	s, src := startSession(t, dev, opts, 4, 4)

	dev.Hold()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			src.Emit(t, ms(i), 4, 4, byte(i))
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("frame arrival blocked on a held device")
	}
	st := s.Stats()
	if st.DroppedPoolExhausted != 8 {
		t.Fatalf("pool exhausted drops=%d want 8", st.DroppedPoolExhausted)
	}
	if st.InFlight != 2 {
		t.Fatalf("in flight=%d want 2", st.InFlight)
	}
	dev.Resume()
	waitFor(t, "held copies", func() bool { return s.Stats().Ring.Committed == 2 })
	if got := s.Stats().Dropped(); got != 8 {
		t.Fatalf("Dropped()=%d want 8", got)
	}
}

func TestSession_RetentionScenario(t *testing.T) {
	s, src := startSession(t, gpu.NewSoftwareDevice(), DefaultOptions(), 8, 8)
	// 3 seconds at 30 fps against a 2 second window
	for i := 0; i <= 90; i++ {
		emitCommitted(t, s, src, time.Duration(i)*time.Second/30, 8, 8, byte(i))
	}
	st := s.Stats().Ring
	if st.Frames != 61 {
		t.Fatalf("frames=%d want 61", st.Frames)
	}
	if span := st.NewestTimestamp - st.OldestTimestamp; span > 2*time.Second {
		t.Fatalf("span=%v exceeds 2s", span)
	}
}

func TestSession_BudgetScenario(t *testing.T) {
	opts := DefaultOptions()
	opts.MemoryBudgetMB = 1
	s, src := startSession(t, gpu.NewSoftwareDevice(), opts, 256, 256)
	for i := 0; i < 10; i++ {
		emitCommitted(t, s, src, ms(i*33), 256, 256, byte(i))
	}
	st := s.Stats().Ring
	if st.Frames != 4 || st.Bytes > 1<<20 {
		t.Fatalf("frames=%d bytes=%d want 4 frames within 1 MiB", st.Frames, st.Bytes)
	}
}

func TestSession_CloseWithOpenSnapshot(t *testing.T) {
	dev := gpu.NewSoftwareDevice()
	s, src := startSession(t, dev, DefaultOptions(), 4, 4)
	for i := 0; i < 3; i++ {
		emitCommitted(t, s, src, ms(i*10), 4, 4, byte(i+1))
	}
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if s.State() != StateClosed || src.stopped != 1 {
		t.Fatalf("state=%v stopped=%d", s.State(), src.stopped)
	}

	if st := s.Stats(); st.Ring.DetachedFrames != 3 || st.OpenSnapshots != 1 {
		t.Fatalf("detached=%d snapshots=%d", st.Ring.DetachedFrames, st.OpenSnapshots)
	}
	for i := 0; i < 3; i++ {
		v, ok := snap.Frame(i)
		if !ok || v.Data[0] != byte(3-i) {
			t.Fatalf("pinned frame %d unreadable after session close", i)
		}
	}
	if _, _, err := s.GetFrame(0); !errors.Is(err, ErrUseAfterClose) {
		t.Fatalf("GetFrame after close err=%v", err)
	}
	if _, err := s.Snapshot(); !errors.Is(err, ErrUseAfterClose) {
		t.Fatalf("Snapshot after close err=%v", err)
	}

	snap.Close()
	if st := s.Stats(); st.Ring.DetachedFrames != 0 || st.OpenSnapshots != 0 {
		t.Fatalf("after snapshot close detached=%d snapshots=%d", st.Ring.DetachedFrames, st.OpenSnapshots)
	}
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not drain")
	}
	if dev.LiveBuffers() != 0 {
		t.Fatalf("staging buffers leaked: %d", dev.LiveBuffers())
	}
}

func TestSession_CloseDrainsInFlightCopies(t *testing.T) {
	dev := gpu.NewSoftwareDevice()
	s, src := startSession(t, dev, DefaultOptions(), 4, 4)
	dev.Hold()
	src.Emit(t, 0, 4, 4, 1)
	s.Close()
	select {
	case <-s.Done():
		t.Fatalf("drained while a copy was still held")
	default:
	}
	dev.Resume()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not drain")
	}
	if dev.LiveBuffers() != 0 {
		t.Fatalf("staging buffers leaked: %d", dev.LiveBuffers())
	}
	st := s.Stats()
	if st.Ring.Committed != 0 {
		t.Fatalf("frame committed after close")
	}
	if st.InFlight != 0 {
		t.Fatalf("in_flight=%d after drain, want 0", st.InFlight)
	}
}

func TestSession_DeviceLostIsFatal(t *testing.T) {
	dev := gpu.NewSoftwareDevice()
	s, src := startSession(t, dev, DefaultOptions(), 4, 4)
	emitCommitted(t, s, src, 0, 4, 4, 1)
	dev.Lose()
	src.Emit(t, ms(10), 4, 4, 2)
	waitFor(t, "session close", func() bool { return s.State() == StateClosed })
	if !errors.Is(s.Err(), ErrDeviceLost) {
		t.Fatalf("Err()=%v want ErrDeviceLost", s.Err())
	}
	_, _, err := s.GetFrame(0)
	if !errors.Is(err, ErrUseAfterClose) || !errors.Is(err, ErrDeviceLost) {
		t.Fatalf("GetFrame err=%v", err)
	}
	if !IsFatal(s.Err()) {
		t.Fatalf("IsFatal false for device lost")
	}
}

func TestSession_ResizeFlushesRing(t *testing.T) {
	tests := []struct {
		name string
		keep bool
		want int
	}{
		{"flush", false, 1},
		{"keep", true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := gpu.NewSoftwareDevice()
			opts := DefaultOptions()
			opts.KeepFramesOnResize = tt.keep
			s, src := startSession(t, dev, opts, 4, 2)
			emitCommitted(t, s, src, 0, 4, 2, 1)
			emitCommitted(t, s, src, ms(10), 4, 2, 1)
			emitCommitted(t, s, src, ms(20), 80, 4, 2)

			st := s.Stats()
			if st.Ring.Frames != tt.want || st.Resizes != 1 {
				t.Fatalf("frames=%d resizes=%d want %d/1", st.Ring.Frames, st.Resizes, tt.want)
			}
			v, _, _ := s.GetFrame(0)
			if v.Width != 80 || v.Stride != 512 {
				t.Fatalf("newest frame %dx%d stride %d", v.Width, v.Height, v.Stride)
			}
			if dev.LiveBuffers() != opts.withDefaults().StagingSlots {
				t.Fatalf("old pool not released: live=%d", dev.LiveBuffers())
			}
		})
	}
}

// stallingDevice blocks the first MapRead until release is closed.
type stallingDevice struct {
	*gpu.SoftwareDevice
	once    sync.Once
	mapping chan struct{}
	release chan struct{}
}

func newStallingDevice() *stallingDevice {
	return &stallingDevice{
		SoftwareDevice: gpu.NewSoftwareDevice(),
		mapping:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (d *stallingDevice) MapRead(buf gpu.StagingBuffer) ([]byte, error) {
	first := false
	d.once.Do(func() { first = true })
	if first {
		close(d.mapping)
		<-d.release
	}
	return d.SoftwareDevice.MapRead(buf)
}

func TestSession_ResizeDuringReadbackDropsOldFrame(t *testing.T) {
	dev := newStallingDevice()
	s, src := startSession(t, dev, DefaultOptions(), 4, 2)

	src.Emit(t, 0, 4, 2, 1)
	select {
	case <-dev.mapping:
	case <-time.After(5 * time.Second):
		t.Fatalf("worker never mapped the first frame")
	}
	// The worker is past its retirement check; this resize flushes the ring.
	src.Emit(t, ms(20), 80, 4, 2)
	close(dev.release)

	waitFor(t, "both readbacks", func() bool {
		st := s.Stats()
		return st.Ring.Committed+st.Ring.DroppedStale >= 2
	})
	st := s.Stats()
	if st.Ring.Frames != 1 || st.Ring.Committed != 1 || st.Ring.DroppedStale != 1 {
		t.Fatalf("frames=%d committed=%d stale=%d want 1/1/1", st.Ring.Frames, st.Ring.Committed, st.Ring.DroppedStale)
	}
	if st.Dropped() < 1 {
		t.Fatalf("stale frame not counted as dropped")
	}
	v, ok, err := s.GetFrame(0)
	if err != nil || !ok || v.Width != 80 || v.Height != 4 {
		t.Fatalf("newest frame %dx%d ok=%v err=%v", v.Width, v.Height, ok, err)
	}
	if _, ok, _ := s.GetFrame(1); ok {
		t.Fatalf("frame from the previous size survived the resize")
	}
}

func TestSession_Lifecycle(t *testing.T) {
	dev := gpu.NewSoftwareDevice()
	if _, err := NewSession(nil, dev, Options{}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("zero options err=%v", err)
	}
	s, err := NewSession(nil, dev, DefaultOptions())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if s.State() != StateCreated || s.ID() == "" {
		t.Fatalf("state=%v id=%q", s.State(), s.ID())
	}
	if err := s.Start(nil); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("nil source err=%v", err)
	}
	src := &manualSource{}
	if err := s.Start(src); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(src); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start err=%v", err)
	}
	s.Close()
	if err := s.Start(src); !errors.Is(err, ErrUseAfterClose) {
		t.Fatalf("start after close err=%v", err)
	}

	bad, _ := NewSession(nil, dev, DefaultOptions())
	boom := errors.New("boom")
	if err := bad.Start(&manualSource{failErr: boom}); !errors.Is(err, boom) {
		t.Fatalf("source start err=%v", err)
	}
	if bad.State() != StateClosed {
		t.Fatalf("state=%v after failed start", bad.State())
	}
}

func TestSession_WithSnapshot(t *testing.T) {
	s, src := startSession(t, gpu.NewSoftwareDevice(), DefaultOptions(), 2, 2)
	for i := 0; i < 4; i++ {
		emitCommitted(t, s, src, ms(i*100), 2, 2, byte(i))
	}
	var n int
	err := s.WithSnapshot(func(snap *Snapshot) error {
		n = snap.Len()
		return nil
	}, WithStart(ms(100)), WithEnd(ms(200)))
	if err != nil || n != 2 {
		t.Fatalf("WithSnapshot n=%d err=%v", n, err)
	}
	if st := s.Stats(); st.OpenSnapshots != 0 {
		t.Fatalf("snapshot not closed")
	}
}
