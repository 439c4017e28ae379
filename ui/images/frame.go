// Package images converts retained frames into images the preview can show.
package images

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"

	"github.com/soocke/framering-go/domain/capture"
	"github.com/soocke/framering-go/domain/gpu"
)

// FromFrame copies a frame view into a tightly packed RGBA image. Row padding
// is dropped and BGRA channels are swapped. Single channel frames become grey.
func FromFrame(v capture.FrameView) (*image.RGBA, error) {
	if v.Width <= 0 || v.Height <= 0 {
		return nil, fmt.Errorf("images: empty frame %dx%d", v.Width, v.Height)
	}
	switch v.Format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatR8Unorm:
	default:
		return nil, fmt.Errorf("images: unsupported format %s", gpu.FormatName(v.Format))
	}
	bpp := gpu.BytesPerPixel(v.Format)
	if v.Stride < v.Width*bpp || len(v.Data) < v.Stride*(v.Height-1)+v.Width*bpp {
		return nil, fmt.Errorf("images: frame %dx%d stride %d has %d bytes", v.Width, v.Height, v.Stride, len(v.Data))
	}
	img := image.NewRGBA(image.Rect(0, 0, v.Width, v.Height))
	for y := 0; y < v.Height; y++ {
		src := v.Data[y*v.Stride : y*v.Stride+v.Width*bpp]
		dst := img.Pix[y*img.Stride : y*img.Stride+v.Width*4]
		switch v.Format {
		case gputypes.TextureFormatRGBA8Unorm:
			copy(dst, src)
		case gputypes.TextureFormatBGRA8Unorm:
			for x := 0; x < len(src); x += 4 {
				dst[x+0] = src[x+2]
				dst[x+1] = src[x+1]
				dst[x+2] = src[x+0]
				dst[x+3] = src[x+3]
			}
		default:
			for x, g := range src {
				dst[x*4+0] = g
				dst[x*4+1] = g
				dst[x*4+2] = g
				dst[x*4+3] = 0xFF
			}
		}
	}
	return img, nil
}
