package source

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/soocke/framering-go/domain/capture"
	"github.com/soocke/framering-go/domain/gpu"
)

func TestGrabSource_DeliversOrderedFrames(t *testing.T) {
	syn, err := NewSynthetic(8, 4)
	if err != nil {
		t.Fatalf("synthetic: %v", err)
	}
	src := NewGrabSource(nil, "test", syn.Grab, time.Millisecond, gputypes.TextureFormatRGBA8Unorm, 8, 4)

	var mu sync.Mutex
	var stamps []time.Duration
	got := make(chan struct{})
	err = src.Start(func(tex gpu.Texture, ts time.Duration, w, h int) {
		mu.Lock()
		defer mu.Unlock()
		if w != 8 || h != 4 || tex.Format() != gputypes.TextureFormatRGBA8Unorm {
			t.Errorf("frame %dx%d format %v", w, h, tex.Format())
		}
		stamps = append(stamps, ts)
		if len(stamps) == 5 {
			close(got)
		}
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := src.Start(nil); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start err=%v", err)
	}
	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatalf("no frames delivered")
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	mu.Lock()
	n := len(stamps)
	for i := 1; i < n; i++ {
		if stamps[i] < stamps[i-1] {
			t.Errorf("timestamps decrease at %d", i)
		}
	}
	mu.Unlock()

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(stamps) != n {
		t.Fatalf("handler called after Stop")
	}
	if st := src.Stats(); st.Grabs < 5 || st.LastWidth != 8 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestGrabSource_SkipsFailedGrabs(t *testing.T) {
	src := NewGrabSource(nil, "failing", func() (gpu.Texture, error) {
		return nil, errors.New("no display")
	}, time.Millisecond, gputypes.TextureFormatRGBA8Unorm, 0, 0)
	if err := src.Start(func(gpu.Texture, time.Duration, int, int) { t.Errorf("handler called") }); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for src.Stats().Skipped < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("grab loop did not run")
		}
		time.Sleep(time.Millisecond)
	}
	src.Stop()
	if src.Running() {
		t.Fatalf("still running after stop")
	}
}

func TestSynthetic_EncodesFrameNumber(t *testing.T) {
	syn, _ := NewSynthetic(4, 4)
	a := syn.Render()
	b := syn.Render()
	if a.Pix[0] != 0 || b.Pix[0] != 1 || syn.Frames() != 2 {
		t.Fatalf("frame numbers %d %d frames=%d", a.Pix[0], b.Pix[0], syn.Frames())
	}
	if _, err := NewSynthetic(0, 4); !errors.Is(err, capture.ErrInvalidTarget) {
		t.Fatalf("err=%v", err)
	}
}

func TestSyntheticBackend_EndToEnd(t *testing.T) {
	dev := gpu.NewSoftwareDevice()
	b := NewSyntheticBackend(nil, dev, 16, 8)
	opts := capture.DefaultOptions()
	opts.TargetFPS = 200
	st, err := capture.OpenMonitor(nil, b, 1, opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	sess, err := st.CreateSession()
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for sess.Stats().Ring.Committed < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("no frames committed")
		}
		time.Sleep(time.Millisecond)
	}
	v, ok, err := sess.GetFrame(0)
	if err != nil || !ok {
		t.Fatalf("GetFrame ok=%v err=%v", ok, err)
	}
	if v.Width != 16 || v.Height != 8 || v.Stride != 256 {
		t.Fatalf("frame %dx%d stride %d", v.Width, v.Height, v.Stride)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not drain")
	}
	if dev.LiveBuffers() != 0 {
		t.Fatalf("leaked %d staging buffers", dev.LiveBuffers())
	}
}
