package presenter

import (
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/soocke/framering-go/domain/capture"
	"github.com/soocke/framering-go/ui/model"
)

// fakeFrames serves frames at 100ms spacing, newest last.
type fakeFrames struct {
	seqs []uint64
	ages []time.Duration
	err  error
}

func (f *fakeFrames) GetFrameByAge(age time.Duration) (capture.FrameView, bool, error) {
	f.ages = append(f.ages, age)
	if f.err != nil {
		return capture.FrameView{}, false, f.err
	}
	if len(f.seqs) == 0 {
		return capture.FrameView{}, false, nil
	}
	i := len(f.seqs) - 1 - int(age/(100*time.Millisecond))
	if i < 0 {
		i = 0
	}
	return capture.FrameView{
		Sequence:  f.seqs[i],
		Timestamp: time.Duration(i) * 100 * time.Millisecond,
		Width:     2,
		Height:    1,
		Stride:    8,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Data:      make([]byte, 8),
	}, true, nil
}

type fakePreviewView struct {
	frames   int
	captions []string
}

func (v *fakePreviewView) UpdateFrame(img image.Image, caption string) {
	v.frames++
	v.captions = append(v.captions, caption)
}

func TestPreviewPresenter_RefreshOnlyOnNewFrames(t *testing.T) {
	m := &model.CaptureModel{}
	frames := &fakeFrames{seqs: []uint64{0, 1, 2}}
	view := &fakePreviewView{}
	p := NewPreviewPresenter(nil, m, func() FrameReader { return frames }, view, time.Second)

	p.Refresh()
	if view.frames != 0 || len(frames.ages) != 0 {
		t.Fatalf("refreshed while disabled")
	}
	m.SetEnabled(true)
	p.Refresh()
	p.Refresh()
	if view.frames != 1 || !strings.HasPrefix(view.captions[0], "#2 ") || !strings.HasSuffix(view.captions[0], "live") {
		t.Fatalf("frames=%d captions=%v", view.frames, view.captions)
	}

	frames.seqs = append(frames.seqs, 3)
	p.Refresh()
	if view.frames != 2 {
		t.Fatalf("new frame not shown")
	}
}

func TestPreviewPresenter_Scrub(t *testing.T) {
	m := &model.CaptureModel{}
	m.SetEnabled(true)
	frames := &fakeFrames{seqs: []uint64{0, 1, 2, 3, 4, 5}}
	view := &fakePreviewView{}
	p := NewPreviewPresenter(nil, m, func() FrameReader { return frames }, view, 400*time.Millisecond)

	p.Older()
	p.Older()
	p.Older()
	if m.Age() != 400*time.Millisecond {
		t.Fatalf("age=%v want clamp at 400ms", m.Age())
	}
	p.Refresh()
	if !strings.HasPrefix(view.captions[0], "#1 ") || !strings.HasSuffix(view.captions[0], "-400ms") {
		t.Fatalf("caption=%q", view.captions[0])
	}
	p.Newer()
	if m.Age() != 150*time.Millisecond {
		t.Fatalf("age=%v want 150ms", m.Age())
	}
	p.Live()
	if m.Age() != 0 {
		t.Fatalf("live age=%v", m.Age())
	}
}

func TestPreviewPresenter_NoSessionOrError(t *testing.T) {
	m := &model.CaptureModel{}
	m.SetEnabled(true)
	view := &fakePreviewView{}
	p := NewPreviewPresenter(nil, m, func() FrameReader { return nil }, view, time.Second)
	p.Refresh()

	frames := &fakeFrames{err: errors.New("closed")}
	p = NewPreviewPresenter(nil, m, func() FrameReader { return frames }, view, time.Second)
	p.Refresh()
	if view.frames != 0 {
		t.Fatalf("view updated without a frame")
	}
}
