package source

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/vova616/screenshot"

	"github.com/soocke/framering-go/domain/capture"
	"github.com/soocke/framering-go/domain/gpu"
)

// Desktop is the capture backend for the local desktop. Monitors are grabbed
// with the screenshot package; windows use GDI where the platform has it.
// Pixels are uploaded into the software device.
type Desktop struct {
	logger *slog.Logger
	device *gpu.SoftwareDevice
}

// NewDesktop returns a desktop backend reading back through device.
func NewDesktop(logger *slog.Logger, device *gpu.SoftwareDevice) *Desktop {
	if device == nil {
		device = gpu.NewSoftwareDevice()
	}
	return &Desktop{logger: logger, device: device}
}

// Device returns the device sessions read back with.
func (d *Desktop) Device() gpu.Device { return d.device }

// Validate checks that the target exists and can be captured.
func (d *Desktop) Validate(t capture.Target) error {
	switch t.Kind {
	case capture.TargetMonitor:
		_, err := monitorRect(t.Handle)
		return err
	case capture.TargetWindow:
		_, err := windowRect(t.Handle)
		return err
	default:
		return fmt.Errorf("unknown target kind %v", t.Kind)
	}
}

// NewSource returns a grab loop for t running at opts.TargetFPS.
func (d *Desktop) NewSource(t capture.Target, opts capture.Options) (capture.Source, error) {
	switch t.Kind {
	case capture.TargetMonitor:
		r, err := monitorRect(t.Handle)
		if err != nil {
			return nil, err
		}
		return NewGrabSource(d.logger, t.String(), func() (gpu.Texture, error) {
			return grabRect(r)
		}, opts.FrameInterval(), gputypes.TextureFormatRGBA8Unorm, r.Dx(), r.Dy()), nil
	case capture.TargetWindow:
		r, err := windowRect(t.Handle)
		if err != nil {
			return nil, err
		}
		if opts.BorderRequired && d.logger != nil {
			d.logger.Debug("desktop: capture border not supported by GDI grabs", "target", t.String())
		}
		hwnd, cursor := t.Handle, opts.IncludeCursor
		return NewGrabSource(d.logger, t.String(), func() (gpu.Texture, error) {
			return grabWindow(hwnd, cursor)
		}, opts.FrameInterval(), gputypes.TextureFormatBGRA8Unorm, r.Dx(), r.Dy()), nil
	default:
		return nil, fmt.Errorf("%w: unknown target kind %v", capture.ErrInvalidTarget, t.Kind)
	}
}

// grabRect captures r of the virtual screen as an RGBA texture.
func grabRect(r image.Rectangle) (gpu.Texture, error) {
	img, err := screenshot.CaptureRect(r)
	if err != nil {
		return nil, fmt.Errorf("screenshot %v: %w", r, err)
	}
	return gpu.TextureFromRGBA(img)
}

// primaryRect returns the bounds of the primary screen.
func primaryRect() (image.Rectangle, error) {
	r, err := screenshot.ScreenRect()
	if err != nil {
		return image.Rectangle{}, err
	}
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("empty screen rect %v", r)
	}
	return r, nil
}

var _ capture.Backend = (*Desktop)(nil)
