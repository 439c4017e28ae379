package capture

import (
	"time"

	"github.com/gogpu/gputypes"

	"github.com/soocke/framering-go/domain/gpu"
)

// FrameHandler receives frames from a Source. ts is the capture time relative
// to the source's start and must be non-decreasing in the common case. The
// handler never blocks and is never called concurrently with itself.
type FrameHandler func(tex gpu.Texture, ts time.Duration, width, height int)

// Source delivers GPU-resident frames of one capture target.
type Source interface {
	// Start begins delivery to h. It returns once delivery is set up.
	Start(h FrameHandler) error
	// Stop ends delivery. No call to the handler starts after Stop returns.
	Stop() error
	// Size returns the current target size, or zeros when unknown.
	Size() (width, height int)
	// Format returns the pixel format of delivered textures.
	Format() gputypes.TextureFormat
}
