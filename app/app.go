// Package app hosts the Tk preview window: a live view of the frame ring
// with controls to start and stop recording and to step back through the
// retained frames.
package app

import (
	"fmt"
	"log/slog"
	"time"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"

	"github.com/soocke/framering-go/config"
	"github.com/soocke/framering-go/domain/recorder"
	"github.com/soocke/framering-go/ui/presenter"
	"github.com/soocke/framering-go/ui/view"
)

const tick = 100 * time.Millisecond

// PreviewApp is the Tk front end over one recorder.
type PreviewApp struct {
	container *AppContainer
	logger    *slog.Logger
	afterID   string
	autoStart bool
}

// NewApp sizes the main window and wires the container. When autoStart is
// set recording begins as soon as the window is shown.
func NewApp(title string, cfg *config.Config, logger *slog.Logger, rec *recorder.Recorder, cfgPath string, autoStart bool) *PreviewApp {
	a := &PreviewApp{logger: logger, autoStart: autoStart}
	a.container = BuildContainer(cfg, logger, rec, cfgPath)

	App.WmTitle(title)
	WmProtocol(App, "WM_DELETE_WINDOW", a.exitHandler)
	// Leave room for the option form and controls around the preview.
	WmGeometry(App, fmt.Sprintf("%dx%d+100+100", cfg.PreviewWidth+40, cfg.PreviewHeight+320))
	return a
}

// Start builds the view, schedules the update loop and blocks in the Tk
// event loop until the window closes. Recording is stopped on return.
func (a *PreviewApp) Start() {
	c := a.container
	c.RootView.Build(view.Handlers{
		ToggleCapture: a.toggle,
		Older:         c.PreviewPresenter.Older,
		Newer:         c.PreviewPresenter.Newer,
		Live:          c.PreviewPresenter.Live,
		Exit:          a.exitHandler,
	})
	c.Loop = presenter.NewLoop(c.SessionPresenter, c.PreviewPresenter, c.CapturePresenter, c.Health, a.scheduleUpdate)
	if a.autoStart {
		a.toggle()
	}
	a.scheduleUpdate()
	App.Wait()

	c.Health.OnRecording(false)
	if err := c.Recorder.Stop(); err != nil {
		a.logger.Warn("app.stop", "error", err)
	}
}

func (a *PreviewApp) toggle() {
	c := a.container
	c.CapturePresenter.Toggle()
	c.Health.OnRecording(c.Capture.Enabled())
}

func (a *PreviewApp) exitHandler() {
	if a.afterID != "" {
		TclAfterCancel(a.afterID)
	}
	Destroy(App)
}

func (a *PreviewApp) scheduleUpdate() {
	// TclAfter keeps every widget update on Tk's event loop thread.
	a.afterID = TclAfter(tick, func() { a.container.Loop.Tick() })
}
