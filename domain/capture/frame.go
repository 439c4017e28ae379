package capture

import (
	"time"

	"github.com/gogpu/gputypes"
)

// Frame is a committed CPU-side copy of one captured image. All exported
// accessors are safe once the frame has been committed; the bytes returned by
// Bytes stay valid only while the frame is retained by the ring or pinned by
// an open Snapshot.
type Frame struct {
	seq        uint64
	ts         time.Duration
	width      int
	height     int
	stride     int
	format     gputypes.TextureFormat
	data       []byte
	capturedAt time.Time
	gen        uint64 // ring flush generation the copy was issued in

	// guarded by Ring.mu
	pins    int
	evicted bool
	freed   bool
}

// newFrame wraps data (stride*height bytes) as an uncommitted frame.
func newFrame(ts time.Duration, width, height, stride int, format gputypes.TextureFormat, data []byte) *Frame {
	return &Frame{ts: ts, width: width, height: height, stride: stride, format: format, data: data, capturedAt: time.Now()}
}

func (f *Frame) Sequence() uint64               { return f.seq }
func (f *Frame) Timestamp() time.Duration       { return f.ts }
func (f *Frame) Width() int                     { return f.width }
func (f *Frame) Height() int                    { return f.height }
func (f *Frame) Stride() int                    { return f.stride }
func (f *Frame) Format() gputypes.TextureFormat { return f.format }
func (f *Frame) CapturedAt() time.Time          { return f.capturedAt }

// Size returns the number of bytes held by the frame.
func (f *Frame) Size() int { return len(f.data) }

// Bytes returns the backing pixels without copying.
func (f *Frame) Bytes() []byte { return f.data }

func (f *Frame) view(data []byte) FrameView {
	return FrameView{
		Sequence:  f.seq,
		Timestamp: f.ts,
		Width:     f.width,
		Height:    f.height,
		Stride:    f.stride,
		Format:    f.format,
		Data:      data,
	}
}

// free returns the pixels to the pool. Caller holds Ring.mu.
func (f *Frame) free() {
	if f.freed {
		return
	}
	recycleBuffer(f.data)
	f.data = nil
	f.freed = true
}

// FrameView is the result shape of frame lookups: dimensions, row stride and
// the pixel bytes in the delivered format.
type FrameView struct {
	Sequence  uint64
	Timestamp time.Duration
	Width     int
	Height    int
	Stride    int
	Format    gputypes.TextureFormat
	Data      []byte
}
