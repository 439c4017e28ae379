// Package gpu defines the narrow device contract the readback pipeline needs:
// staging buffer creation, asynchronous texture-to-buffer copies signalled
// through fences, and CPU mapping of finished copies.
package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// Device errors.
var (
	// ErrDeviceLost is returned (or signalled through a Fence) once the
	// underlying adapter has been reset or removed. It is fatal to every
	// resource created from the device.
	ErrDeviceLost = errors.New("gpu: device lost")

	// ErrBufferDestroyed is returned when operating on a destroyed buffer.
	ErrBufferDestroyed = errors.New("gpu: buffer has been destroyed")

	// ErrInvalidBufferSize is returned when a buffer size is zero.
	ErrInvalidBufferSize = errors.New("gpu: invalid buffer size")

	// ErrBufferAlreadyMapped is returned when a mapped buffer is used as a copy
	// destination or mapped twice.
	ErrBufferAlreadyMapped = errors.New("gpu: buffer is already mapped")

	// ErrCopyPending is returned when mapping a buffer whose copy has not
	// signalled yet.
	ErrCopyPending = errors.New("gpu: copy into buffer still pending")

	// ErrUsageMismatch is returned when buffer usage flags do not allow the
	// requested operation.
	ErrUsageMismatch = errors.New("gpu: buffer usage does not allow operation")

	// ErrCopyOutOfRange is returned when a copy does not fit the destination.
	ErrCopyOutOfRange = errors.New("gpu: copy exceeds destination buffer")

	// ErrForeignResource is returned when a texture or buffer was not created
	// by the device it is used with.
	ErrForeignResource = errors.New("gpu: resource belongs to another device")
)

// CopyBytesPerRowAlignment is the row pitch alignment required for
// texture-to-buffer copies.
const CopyBytesPerRowAlignment = 256

// Texture is a GPU-resident image delivered by a capture source.
type Texture interface {
	Width() int
	Height() int
	Format() gputypes.TextureFormat
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage specifies how the buffer will be used.
	Usage gputypes.BufferUsage
}

// StagingBuffer is a CPU-mappable buffer used as a copy destination.
type StagingBuffer interface {
	Label() string
	Size() uint64
	Usage() gputypes.BufferUsage
}

// Fence signals completion of an asynchronous copy. Err is only meaningful
// after Done has been closed.
type Fence interface {
	Done() <-chan struct{}
	Err() error
}

// Device is the subset of a graphics device used by the readback pipeline.
//
// CopyTextureToBuffer must not wait for the copy to complete. MapRead is only
// valid after the fence of the last copy into the buffer has signalled, and
// the returned slice is only valid until Unmap.
type Device interface {
	CreateBuffer(desc *BufferDescriptor) (StagingBuffer, error)
	CopyTextureToBuffer(src Texture, dst StagingBuffer, bytesPerRow int) (Fence, error)
	MapRead(buf StagingBuffer) ([]byte, error)
	Unmap(buf StagingBuffer)
	DestroyBuffer(buf StagingBuffer)
}

// BytesPerPixel returns the texel size of format. Unknown formats are
// assumed to be 4 bytes wide.
func BytesPerPixel(format gputypes.TextureFormat) int {
	switch format {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return 4
	default:
		return 4
	}
}

// FormatName returns a short name for the pixel formats capture sources
// deliver.
func FormatName(format gputypes.TextureFormat) string {
	switch format {
	case gputypes.TextureFormatR8Unorm:
		return "R8"
	case gputypes.TextureFormatRGBA8Unorm:
		return "RGBA8"
	case gputypes.TextureFormatBGRA8Unorm:
		return "BGRA8"
	default:
		return fmt.Sprintf("Unknown(%d)", int(format))
	}
}

// AlignedBytesPerRow returns the row pitch of a width-texel row of format,
// rounded up to CopyBytesPerRowAlignment.
func AlignedBytesPerRow(width int, format gputypes.TextureFormat) int {
	row := width * BytesPerPixel(format)
	return (row + CopyBytesPerRowAlignment - 1) / CopyBytesPerRowAlignment * CopyBytesPerRowAlignment
}

// ReadbackBufferDescriptor returns the descriptor of a staging buffer able to
// receive a width x height copy of format.
func ReadbackBufferDescriptor(label string, width, height int, format gputypes.TextureFormat) *BufferDescriptor {
	return &BufferDescriptor{
		Label: label,
		Size:  uint64(AlignedBytesPerRow(width, format)) * uint64(height),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	}
}
