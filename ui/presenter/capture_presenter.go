package presenter

import (
	"io"
	"log/slog"
)

// CaptureModel provides enabled state access.
type CaptureModel interface {
	Enabled() bool
	SetEnabled(bool)
}

// LifecycleContract narrows what the presenter needs from the recorder.
type LifecycleContract interface {
	Start() error
	Stop() error
}

// CaptureView updates UI elements affected by capture toggling.
type CaptureView interface {
	PreviewReset()
	ConfigEditable(bool)
	SetStateLabel(string)
}

// CapturePresenter owns presentation logic for toggling recording.
type CapturePresenter struct {
	model   CaptureModel
	service LifecycleContract
	view    CaptureView
	logger  *slog.Logger
}

func NewCapturePresenter(logger *slog.Logger, model CaptureModel, service LifecycleContract, view CaptureView) *CapturePresenter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CapturePresenter{model: model, service: service, view: view, logger: logger}
}

func (c *CapturePresenter) ready() bool {
	return c != nil && c.model != nil && c.service != nil && c.view != nil
}

// Enable starts recording and locks the option form. A failed start leaves
// the presenter disabled with the error on the state label. Idempotent.
func (c *CapturePresenter) Enable() {
	if !c.ready() || c.model.Enabled() {
		return
	}
	if err := c.service.Start(); err != nil {
		c.logger.Error("capture.start", "error", err)
		c.view.SetStateLabel("Error: " + err.Error())
		return
	}
	c.model.SetEnabled(true)
	c.view.ConfigEditable(false)
	c.view.SetStateLabel("Recording")
}

// Disable stops recording and resets the preview. Idempotent.
func (c *CapturePresenter) Disable() {
	if !c.ready() || !c.model.Enabled() {
		return
	}
	if err := c.service.Stop(); err != nil {
		c.logger.Warn("capture.stop", "error", err)
	}
	c.model.SetEnabled(false)
	c.view.PreviewReset()
	c.view.ConfigEditable(true)
	c.view.SetStateLabel("Stopped")
}

// Fail disables recording after the session died on its own and shows why.
func (c *CapturePresenter) Fail(err error) {
	if !c.ready() {
		return
	}
	c.Disable()
	c.view.SetStateLabel("Failed: " + err.Error())
}

// Toggle flips enabled state delegating to Enable/Disable.
func (c *CapturePresenter) Toggle() {
	if !c.ready() {
		return
	}
	if c.model.Enabled() {
		c.Disable()
		return
	}
	c.Enable()
}
