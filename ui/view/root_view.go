package view

import (
	"image"
	"log/slog"
	"time"

	"github.com/soocke/framering-go/config"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// RootView composes the top-level application layout and wires UI callbacks.
// It owns high-level subviews but exposes minimal exported fields for presenters.
type RootView struct {
	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger

	// Subviews
	Session     SessionStats
	ConfigPanel ConfigPanel
	CapturePrev CapturePreview

	// Widgets
	StateLabel *LabelWidget
}

// Handlers are the user actions the root view forwards to presenters.
type Handlers struct {
	ToggleCapture func()
	Older         func()
	Newer         func()
	Live          func()
	Exit          func()
}

func NewRootView(cfg *config.Config, cfgPath string, logger *slog.Logger) *RootView {
	return &RootView{cfg: cfg, cfgPath: cfgPath, logger: logger}
}

// Build constructs the layout: stats and controls on top, the capture option
// form below them and the frame preview last.
func (rv *RootView) Build(h Handlers) {
	if rv == nil {
		return
	}
	rv.Session = NewSessionStats(0, 0)
	rv.StateLabel = Label(Txt("Stopped"), Borderwidth(1), Relief("ridge"))
	Grid(rv.StateLabel, Row(0), Column(2), Sticky("we"), Padx("0.4m"), Pady("0.3m"))

	btnFrame := Frame()
	Grid(btnFrame, Row(0), Column(4), Rowspan(2), Sticky("ne"), Padx("0.3m"), Pady("0.3m"))
	buttons := []struct {
		text string
		fn   func()
	}{
		{"Toggle Capture", h.ToggleCapture},
		{"<< Older", h.Older},
		{"Newer >>", h.Newer},
		{"Live", h.Live},
		{"Exit", h.Exit},
	}
	for i, b := range buttons {
		fn := b.fn
		if fn == nil {
			fn = func() {}
		}
		btn := Button(Txt(b.text), Command(fn))
		Grid(btn, In(btnFrame), Row(i), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	}

	rv.ConfigPanel = NewConfigPanel(rv.cfg, rv.cfgPath, rv.logger)
	row := rv.ConfigPanel.Build(2)

	w, ht := maxPreviewW, maxPreviewH
	if rv.cfg != nil {
		w, ht = rv.cfg.PreviewWidth, rv.cfg.PreviewHeight
	}
	rv.CapturePrev, _ = NewCapturePreview(row, w, ht)
}

// SetStateLabel updates the state label text.
func (rv *RootView) SetStateLabel(text string) {
	if rv != nil && rv.StateLabel != nil {
		rv.StateLabel.Configure(Txt(text))
	}
}

// ConfigEditable toggles config panel editability.
func (rv *RootView) ConfigEditable(enabled bool) {
	if rv != nil && rv.ConfigPanel != nil {
		rv.ConfigPanel.SetEditable(enabled)
	}
}

// UpdateFrame proxies to the capture preview.
func (rv *RootView) UpdateFrame(img image.Image, caption string) {
	if rv != nil && rv.CapturePrev != nil {
		rv.CapturePrev.UpdateFrame(img, caption)
	}
}

// PreviewReset clears the capture preview.
func (rv *RootView) PreviewReset() {
	if rv != nil && rv.CapturePrev != nil {
		rv.CapturePrev.Reset()
	}
}

// SetSession updates both session and total recording durations.
func (rv *RootView) SetSession(session, total time.Duration) {
	if rv == nil || rv.Session == nil {
		return
	}
	rv.Session.SetSession(session)
	rv.Session.SetTotal(total)
}

// SetRing updates the ring summary line.
func (rv *RootView) SetRing(summary string) {
	if rv != nil && rv.Session != nil {
		rv.Session.SetRing(summary)
	}
}
