//go:build !windows

package source

import (
	"errors"
	"fmt"
	"image"

	"github.com/soocke/framering-go/domain/gpu"
)

// PrimaryMonitorHandle identifies the primary screen. Only the primary
// screen can be captured on this platform.
const PrimaryMonitorHandle uintptr = 1

var errWindowUnsupported = errors.New("window capture is only supported on windows")

// PrimaryMonitor returns the handle of the primary screen.
func PrimaryMonitor() uintptr { return PrimaryMonitorHandle }

func monitorRect(handle uintptr) (image.Rectangle, error) {
	if handle != PrimaryMonitorHandle {
		return image.Rectangle{}, fmt.Errorf("unknown monitor %#x", handle)
	}
	return primaryRect()
}

func windowRect(uintptr) (image.Rectangle, error) {
	return image.Rectangle{}, errWindowUnsupported
}

func grabWindow(uintptr, bool) (gpu.Texture, error) {
	return nil, errWindowUnsupported
}
