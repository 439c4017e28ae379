package presenter

import (
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/soocke/framering-go/domain/capture"
	"github.com/soocke/framering-go/ui/images"
)

// FrameReader is the lookup the preview needs from a recording session.
type FrameReader interface {
	GetFrameByAge(age time.Duration) (capture.FrameView, bool, error)
}

// PreviewModel holds the preview position and the frame on screen.
type PreviewModel interface {
	Enabled() bool
	Age() time.Duration
	StepAge(delta, max time.Duration) time.Duration
	Observe(seq uint64) bool
}

// PreviewView displays one frame with a caption.
type PreviewView interface {
	UpdateFrame(img image.Image, caption string)
}

// PreviewStep is how far one Older or Newer press moves the preview.
const PreviewStep = 250 * time.Millisecond

// PreviewPresenter shows the newest retained frame, or an older one when the
// user scrubs back through the ring.
type PreviewPresenter struct {
	model  PreviewModel
	frames func() FrameReader
	view   PreviewView
	window time.Duration
	logger *slog.Logger
}

// NewPreviewPresenter returns a presenter reading from the session frames
// returns. frames may return nil while nothing is recording. window bounds
// how far back the preview can move.
func NewPreviewPresenter(logger *slog.Logger, model PreviewModel, frames func() FrameReader, view PreviewView, window time.Duration) *PreviewPresenter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PreviewPresenter{model: model, frames: frames, view: view, window: window, logger: logger}
}

// Older moves the preview one step back in time.
func (p *PreviewPresenter) Older() { p.step(PreviewStep) }

// Newer moves the preview one step towards the newest frame.
func (p *PreviewPresenter) Newer() { p.step(-PreviewStep) }

// Live returns the preview to the newest frame.
func (p *PreviewPresenter) Live() {
	if p == nil || p.model == nil {
		return
	}
	p.model.StepAge(-p.model.Age(), p.window)
}

func (p *PreviewPresenter) step(d time.Duration) {
	if p == nil || p.model == nil {
		return
	}
	age := p.model.StepAge(d, p.window)
	p.logger.Debug("preview.seek", "age", age)
}

// Refresh pushes the selected frame to the view when it changed.
func (p *PreviewPresenter) Refresh() {
	if p == nil || p.model == nil || p.frames == nil || p.view == nil || !p.model.Enabled() {
		return
	}
	r := p.frames()
	if r == nil {
		return
	}
	age := p.model.Age()
	v, ok, err := r.GetFrameByAge(age)
	if err != nil {
		p.logger.Debug("preview.lookup", "error", err)
		return
	}
	if !ok || !p.model.Observe(v.Sequence) {
		return
	}
	img, err := images.FromFrame(v)
	if err != nil {
		p.logger.Warn("preview.convert", "seq", v.Sequence, "error", err)
		return
	}
	p.view.UpdateFrame(img, caption(v, age))
}

func caption(v capture.FrameView, age time.Duration) string {
	pos := "live"
	if age > 0 {
		pos = "-" + age.Round(time.Millisecond).String()
	}
	return fmt.Sprintf("#%d  t=%s  %dx%d  %s", v.Sequence, v.Timestamp.Round(time.Millisecond), v.Width, v.Height, pos)
}
