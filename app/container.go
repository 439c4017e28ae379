package app

import (
	"log/slog"

	"github.com/soocke/framering-go/config"
	"github.com/soocke/framering-go/domain/capture"
	"github.com/soocke/framering-go/domain/recorder"
	"github.com/soocke/framering-go/ui/model"
	"github.com/soocke/framering-go/ui/presenter"
	"github.com/soocke/framering-go/ui/view"
)

// AppContainer assembles models, the recorder, presenters and the root view.
type AppContainer struct {
	Config   *config.Config
	Logger   *slog.Logger
	Capture  *model.CaptureModel
	Session  *model.SessionModel
	Recorder *recorder.Recorder
	RootView *view.RootView

	// Presenters
	SessionPresenter *presenter.SessionPresenter
	PreviewPresenter *presenter.PreviewPresenter
	CapturePresenter *presenter.CapturePresenter
	Health           *presenter.HealthWatcher
	Loop             *presenter.Loop
}

// BuildContainer constructs all components. Nothing starts recording and no
// widgets are created until the app builds the view.
func BuildContainer(cfg *config.Config, logger *slog.Logger, rec *recorder.Recorder, cfgPath string) *AppContainer {
	c := &AppContainer{Config: cfg, Logger: logger, Recorder: rec}
	c.Capture = &model.CaptureModel{}
	c.Session = model.NewSessionModel()
	c.RootView = view.NewRootView(cfg, cfgPath, logger)

	c.CapturePresenter = presenter.NewCapturePresenter(logger, c.Capture, rec, c.RootView)
	c.SessionPresenter = presenter.NewSessionPresenter(c.Session, c.Capture, rec.Stats, c.RootView)
	c.PreviewPresenter = presenter.NewPreviewPresenter(logger, c.Capture, c.frames, c.RootView, cfg.CaptureOptions().Window())
	c.Health = presenter.NewHealthWatcher(logger, rec.Err)
	return c
}

// frames returns the running session as a frame reader, or nil.
func (c *AppContainer) frames() presenter.FrameReader {
	s := c.Recorder.Session()
	if s == nil {
		return nil
	}
	return s
}

var _ presenter.FrameReader = (*capture.Session)(nil)
