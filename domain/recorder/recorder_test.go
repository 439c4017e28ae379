package recorder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soocke/framering-go/domain/capture"
	"github.com/soocke/framering-go/domain/gpu"
	"github.com/soocke/framering-go/domain/source"
	"github.com/soocke/framering-go/platform/metrics"
)

type fakeExporter struct {
	mu         sync.Mutex
	registered map[string]bool
}

func (e *fakeExporter) Register(src metrics.StatsSource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registered[src.ID()] = true
}

func (e *fakeExporter) Unregister(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.registered, id)
}

func testOptions() capture.Options {
	o := capture.DefaultOptions()
	o.TargetFPS = 200
	o.BufferSeconds = 1
	return o
}

func TestRecorder_StartStop(t *testing.T) {
	dev := gpu.NewSoftwareDevice()
	exp := &fakeExporter{registered: map[string]bool{}}
	r := New(nil, source.NewSyntheticBackend(nil, dev, 16, 8), capture.Target{Kind: capture.TargetMonitor, Handle: 1}, testOptions, exp)

	if _, ok := r.Stats(); ok || r.Running() {
		t.Fatalf("stopped recorder reports stats")
	}
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess := r.Session()
	if err := r.Start(); err != nil || r.Session() != sess {
		t.Fatalf("second start replaced session: %v", err)
	}
	if !exp.registered[sess.ID()] {
		t.Fatalf("session not exported")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		st, _ := r.Stats()
		if st.Ring.Committed >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no frames recorded")
		}
		time.Sleep(time.Millisecond)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("err=%v", err)
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if r.Running() || exp.registered[sess.ID()] || sess.State() != capture.StateClosed {
		t.Fatalf("running=%v exported=%v state=%v", r.Running(), exp.registered[sess.ID()], sess.State())
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	<-sess.Done()
	if dev.LiveBuffers() != 0 {
		t.Fatalf("leaked %d buffers", dev.LiveBuffers())
	}
}

func TestRecorder_StartErrors(t *testing.T) {
	b := source.NewSyntheticBackend(nil, nil, 16, 8)
	r := New(nil, b, capture.Target{Kind: capture.TargetWindow}, testOptions, nil)
	if err := r.Start(); !errors.Is(err, capture.ErrInvalidTarget) {
		t.Fatalf("zero handle err=%v", err)
	}

	bad := func() capture.Options {
		o := testOptions()
		o.TargetFPS = 0
		return o
	}
	r = New(nil, b, capture.Target{Kind: capture.TargetMonitor, Handle: 1}, bad, nil)
	if err := r.Start(); !errors.Is(err, capture.ErrInvalidConfiguration) {
		t.Fatalf("bad options err=%v", err)
	}
	if r.Running() {
		t.Fatalf("failed start left a session")
	}
}

func TestSummarize(t *testing.T) {
	r := New(nil, source.NewSyntheticBackend(nil, nil, 16, 8), capture.Target{Kind: capture.TargetMonitor, Handle: 1}, testOptions, nil)
	if _, err := r.Summary(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("summary before start err=%v want ErrNotRecording", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Stop()
	sess := r.Session()
	deadline := time.Now().Add(5 * time.Second)
	for sess.Stats().Ring.Committed < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("no frames recorded")
		}
		time.Sleep(time.Millisecond)
	}

	sum, err := r.Summary()
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Frames < 4 || sum.LastSeq <= sum.FirstSeq || sum.Span() < 0 || sum.Width != 16 {
		t.Fatalf("summary=%+v", sum)
	}
	if sum.Bytes != int64(sum.Frames)*256*8 {
		t.Fatalf("bytes=%d for %d frames", sum.Bytes, sum.Frames)
	}
	if sess.Stats().OpenSnapshots != 0 {
		t.Fatalf("snapshot left open")
	}

	r.Stop()
	if _, err := Summarize(sess); !errors.Is(err, capture.ErrUseAfterClose) {
		t.Fatalf("summarize closed session err=%v", err)
	}
	if _, err := r.Summary(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("summary after stop err=%v want ErrNotRecording", err)
	}
	if got := (Summary{}).String(); got != "no frames retained (0 committed, 0 dropped)" {
		t.Fatalf("empty summary %q", got)
	}
}
