package gpu

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// SoftwareDevice implements Device on system memory. Copies run on their own
// goroutine and signal a fence when done, which keeps the asynchronous shape
// of a real adapter. Sources that grab pixels on the CPU (screenshot based
// desktop capture, synthetic sources) upload through it.
//
// Hold and Resume let callers stall copy completion, and Lose simulates an
// adapter reset.
type SoftwareDevice struct {
	mu   sync.Mutex
	gate chan struct{} // non-nil while copies are held
	lost bool

	liveBuffers atomic.Int64
	pending     atomic.Int64
	copies      atomic.Uint64
}

// NewSoftwareDevice returns a ready-to-use software device.
func NewSoftwareDevice() *SoftwareDevice { return &SoftwareDevice{} }

// SoftwareTexture is a CPU-backed texture.
type SoftwareTexture struct {
	width, height int
	stride        int
	format        gputypes.TextureFormat
	pix           []byte
}

// NewTexture wraps pix as a width x height texture of format. pix must hold
// at least stride*height bytes and must not be modified until every copy
// issued from the texture has signalled.
func NewTexture(width, height, stride int, format gputypes.TextureFormat, pix []byte) (*SoftwareTexture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("gpu: invalid texture size %dx%d", width, height)
	}
	if stride < width*BytesPerPixel(format) {
		return nil, fmt.Errorf("gpu: stride %d too small for width %d", stride, width)
	}
	if len(pix) < stride*height {
		return nil, fmt.Errorf("gpu: texture data too short: %d < %d", len(pix), stride*height)
	}
	return &SoftwareTexture{width: width, height: height, stride: stride, format: format, pix: pix}, nil
}

// TextureFromRGBA wraps img without copying its pixels.
func TextureFromRGBA(img *image.RGBA) (*SoftwareTexture, error) {
	if img == nil {
		return nil, fmt.Errorf("gpu: nil image")
	}
	b := img.Bounds()
	return NewTexture(b.Dx(), b.Dy(), img.Stride, gputypes.TextureFormatRGBA8Unorm, img.Pix)
}

func (t *SoftwareTexture) Width() int                     { return t.width }
func (t *SoftwareTexture) Height() int                    { return t.height }
func (t *SoftwareTexture) Format() gputypes.TextureFormat { return t.format }

type softwareBuffer struct {
	desc      BufferDescriptor
	data      []byte
	mu        sync.Mutex
	pending   bool
	mapped    bool
	destroyed bool
}

func (b *softwareBuffer) Label() string               { return b.desc.Label }
func (b *softwareBuffer) Size() uint64                { return b.desc.Size }
func (b *softwareBuffer) Usage() gputypes.BufferUsage { return b.desc.Usage }

type fence struct {
	done chan struct{}
	err  error
}

func (f *fence) Done() <-chan struct{} { return f.done }
func (f *fence) Err() error            { return f.err }

// CreateBuffer allocates a staging buffer.
func (d *SoftwareDevice) CreateBuffer(desc *BufferDescriptor) (StagingBuffer, error) {
	if desc == nil || desc.Size == 0 {
		return nil, ErrInvalidBufferSize
	}
	if d.isLost() {
		return nil, ErrDeviceLost
	}
	d.liveBuffers.Add(1)
	return &softwareBuffer{desc: *desc, data: make([]byte, desc.Size)}, nil
}

// CopyTextureToBuffer starts copying src into dst with the given row pitch.
// It returns immediately; the fence signals once the bytes are in place.
func (d *SoftwareDevice) CopyTextureToBuffer(src Texture, dst StagingBuffer, bytesPerRow int) (Fence, error) {
	tex, ok := src.(*SoftwareTexture)
	if !ok {
		return nil, ErrForeignResource
	}
	buf, ok := dst.(*softwareBuffer)
	if !ok {
		return nil, ErrForeignResource
	}
	if !buf.desc.Usage.Contains(gputypes.BufferUsageCopyDst) {
		return nil, fmt.Errorf("%w: missing CopyDst", ErrUsageMismatch)
	}
	row := tex.width * BytesPerPixel(tex.format)
	if bytesPerRow < row || uint64(bytesPerRow)*uint64(tex.height) > buf.desc.Size {
		return nil, fmt.Errorf("%w: %dx%d pitch %d into %d bytes", ErrCopyOutOfRange, tex.width, tex.height, bytesPerRow, buf.desc.Size)
	}

	d.mu.Lock()
	lost, gate := d.lost, d.gate
	d.mu.Unlock()
	if lost {
		return nil, ErrDeviceLost
	}

	buf.mu.Lock()
	switch {
	case buf.destroyed:
		buf.mu.Unlock()
		return nil, ErrBufferDestroyed
	case buf.mapped:
		buf.mu.Unlock()
		return nil, ErrBufferAlreadyMapped
	}
	buf.pending = true
	buf.mu.Unlock()

	f := &fence{done: make(chan struct{})}
	d.pending.Add(1)
	go func() {
		defer close(f.done)
		defer d.pending.Add(-1)
		if gate != nil {
			<-gate
		}
		if d.isLost() {
			f.err = ErrDeviceLost
			buf.mu.Lock()
			buf.pending = false
			buf.mu.Unlock()
			return
		}
		buf.mu.Lock()
		if !buf.destroyed {
			for y := 0; y < tex.height; y++ {
				copy(buf.data[y*bytesPerRow:y*bytesPerRow+row], tex.pix[y*tex.stride:y*tex.stride+row])
			}
		} else {
			f.err = ErrBufferDestroyed
		}
		buf.pending = false
		buf.mu.Unlock()
		d.copies.Add(1)
	}()
	return f, nil
}

// MapRead maps a finished copy for reading.
func (d *SoftwareDevice) MapRead(dst StagingBuffer) ([]byte, error) {
	buf, ok := dst.(*softwareBuffer)
	if !ok {
		return nil, ErrForeignResource
	}
	if !buf.desc.Usage.Contains(gputypes.BufferUsageMapRead) {
		return nil, fmt.Errorf("%w: missing MapRead", ErrUsageMismatch)
	}
	if d.isLost() {
		return nil, ErrDeviceLost
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	switch {
	case buf.destroyed:
		return nil, ErrBufferDestroyed
	case buf.pending:
		return nil, ErrCopyPending
	case buf.mapped:
		return nil, ErrBufferAlreadyMapped
	}
	buf.mapped = true
	return buf.data, nil
}

// Unmap releases a mapping. Unmapping an unmapped buffer is a no-op.
func (d *SoftwareDevice) Unmap(dst StagingBuffer) {
	if buf, ok := dst.(*softwareBuffer); ok {
		buf.mu.Lock()
		buf.mapped = false
		buf.mu.Unlock()
	}
}

// DestroyBuffer frees a buffer. Destroying twice is a no-op.
func (d *SoftwareDevice) DestroyBuffer(dst StagingBuffer) {
	buf, ok := dst.(*softwareBuffer)
	if !ok {
		return
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	if buf.destroyed {
		return
	}
	buf.destroyed = true
	buf.mapped = false
	buf.data = nil
	d.liveBuffers.Add(-1)
}

// Hold stalls completion of every copy issued from now on until Resume.
func (d *SoftwareDevice) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate == nil {
		d.gate = make(chan struct{})
	}
}

// Resume releases held copies.
func (d *SoftwareDevice) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

// Lose marks the device lost. Pending and future copies fail with
// ErrDeviceLost; held copies are released so their fences signal.
func (d *SoftwareDevice) Lose() {
	d.mu.Lock()
	d.lost = true
	d.mu.Unlock()
	d.Resume()
}

func (d *SoftwareDevice) isLost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// LiveBuffers reports buffers created and not yet destroyed.
func (d *SoftwareDevice) LiveBuffers() int { return int(d.liveBuffers.Load()) }

// PendingCopies reports copies whose fence has not signalled.
func (d *SoftwareDevice) PendingCopies() int { return int(d.pending.Load()) }

// Copies reports completed copies.
func (d *SoftwareDevice) Copies() uint64 { return d.copies.Load() }

var _ Device = (*SoftwareDevice)(nil)
