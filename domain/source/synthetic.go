package source

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/soocke/framering-go/domain/capture"
	"github.com/soocke/framering-go/domain/gpu"
)

// Synthetic renders a moving test pattern. It needs no display, which makes
// it the source for headless recording and tests.
type Synthetic struct {
	width, height int
	frame         atomic.Uint64
}

// NewSynthetic returns a pattern generator of the given size.
func NewSynthetic(width, height int) (*Synthetic, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: synthetic size %dx%d", capture.ErrInvalidTarget, width, height)
	}
	return &Synthetic{width: width, height: height}, nil
}

// Frames returns the number of frames rendered.
func (s *Synthetic) Frames() uint64 { return s.frame.Load() }

// Render draws the next pattern frame. A vertical bar sweeps across a
// gradient; the frame number is encoded in the first pixel's red and green
// channels.
func (s *Synthetic) Render() *image.RGBA {
	n := s.frame.Add(1) - 1
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	bar := int(n % uint64(s.width))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			c := color.RGBA{
				R: uint8(x * 255 / s.width),
				G: uint8(y * 255 / s.height),
				B: 0x40,
				A: 0xFF,
			}
			if x == bar {
				c = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
			}
			img.SetRGBA(x, y, c)
		}
	}
	img.Pix[0] = uint8(n)
	img.Pix[1] = uint8(n >> 8)
	return img
}

// Grab renders a frame as a texture.
func (s *Synthetic) Grab() (gpu.Texture, error) {
	return gpu.TextureFromRGBA(s.Render())
}

// Source returns a grab loop over the pattern at opts.TargetFPS.
func (s *Synthetic) Source(logger *slog.Logger, opts capture.Options) *GrabSource {
	return NewGrabSource(logger, fmt.Sprintf("synthetic:%dx%d", s.width, s.height), s.Grab,
		opts.FrameInterval(), gputypes.TextureFormatRGBA8Unorm, s.width, s.height)
}

// SyntheticBackend serves every target with a synthetic pattern. Handles are
// accepted as long as they are non-zero.
type SyntheticBackend struct {
	Width, Height int
	device        *gpu.SoftwareDevice
	logger        *slog.Logger
}

// NewSyntheticBackend returns a backend rendering width x height frames.
func NewSyntheticBackend(logger *slog.Logger, device *gpu.SoftwareDevice, width, height int) *SyntheticBackend {
	if device == nil {
		device = gpu.NewSoftwareDevice()
	}
	return &SyntheticBackend{Width: width, Height: height, device: device, logger: logger}
}

func (b *SyntheticBackend) Device() gpu.Device { return b.device }

func (b *SyntheticBackend) Validate(t capture.Target) error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("invalid synthetic size %dx%d", b.Width, b.Height)
	}
	return nil
}

func (b *SyntheticBackend) NewSource(t capture.Target, opts capture.Options) (capture.Source, error) {
	syn, err := NewSynthetic(b.Width, b.Height)
	if err != nil {
		return nil, err
	}
	return syn.Source(b.logger, opts), nil
}

var _ capture.Backend = (*SyntheticBackend)(nil)
