//go:build windows

package source

// Window and monitor targets on Windows. Windows are grabbed with a
// per-frame GDI DIB section: BitBlt from the window DC, then the BGRA rows
// are copied into a heap slice and handed to the device as a BGRA8 texture
// without channel swizzling.

import (
	"errors"
	"fmt"
	"image"
	"unsafe"

	"github.com/gogpu/gputypes"
	"golang.org/x/sys/windows"

	"github.com/soocke/framering-go/domain/gpu"
)

const (
	srccopy                 = 0x00CC0020
	captureblt              = 0x40000000
	dibRGBColors            = 0
	biRGB                   = 0
	monitorDefaultToPrimary = 1
	cursorShowing           = 0x00000001
	diNormal                = 0x0003
)

var (
	user32                 = windows.NewLazySystemDLL("user32.dll")
	gdi32                  = windows.NewLazySystemDLL("gdi32.dll")
	procIsWindow           = user32.NewProc("IsWindow")
	procGetWindowRect      = user32.NewProc("GetWindowRect")
	procGetWindowDC        = user32.NewProc("GetWindowDC")
	procReleaseDC          = user32.NewProc("ReleaseDC")
	procGetDesktopWindow   = user32.NewProc("GetDesktopWindow")
	procMonitorFromWindow  = user32.NewProc("MonitorFromWindow")
	procGetMonitorInfoW    = user32.NewProc("GetMonitorInfoW")
	procGetCursorInfo      = user32.NewProc("GetCursorInfo")
	procDrawIconEx         = user32.NewProc("DrawIconEx")
	procCreateCompatibleDC = gdi32.NewProc("CreateCompatibleDC")
	procDeleteDC           = gdi32.NewProc("DeleteDC")
	procSelectObject       = gdi32.NewProc("SelectObject")
	procBitBlt             = gdi32.NewProc("BitBlt")
	procCreateDIBSection   = gdi32.NewProc("CreateDIBSection")
	procDeleteObject       = gdi32.NewProc("DeleteObject")
)

type rect struct {
	Left, Top, Right, Bottom int32
}

func (r rect) image() image.Rectangle {
	return image.Rect(int(r.Left), int(r.Top), int(r.Right), int(r.Bottom))
}

type monitorInfo struct {
	CbSize    uint32
	RcMonitor rect
	RcWork    rect
	DwFlags   uint32
}

type point struct{ X, Y int32 }

type cursorInfo struct {
	CbSize      uint32
	Flags       uint32
	HCursor     uintptr
	PtScreenPos point
}

type bitmapInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct {
	Header bitmapInfoHeader
	_      [4]byte
}

// PrimaryMonitor returns the HMONITOR of the primary display.
func PrimaryMonitor() uintptr {
	desktop, _, _ := procGetDesktopWindow.Call()
	hmon, _, _ := procMonitorFromWindow.Call(desktop, monitorDefaultToPrimary)
	return hmon
}

func monitorRect(hmon uintptr) (image.Rectangle, error) {
	mi := monitorInfo{CbSize: uint32(unsafe.Sizeof(monitorInfo{}))}
	ok, _, err := procGetMonitorInfoW.Call(hmon, uintptr(unsafe.Pointer(&mi)))
	if ok == 0 {
		return image.Rectangle{}, fmt.Errorf("GetMonitorInfoW(%#x): %w", hmon, err)
	}
	r := mi.RcMonitor.image()
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("monitor %#x has empty bounds", hmon)
	}
	return r, nil
}

func windowRect(hwnd uintptr) (image.Rectangle, error) {
	if ok, _, _ := procIsWindow.Call(hwnd); ok == 0 {
		return image.Rectangle{}, fmt.Errorf("%#x is not a window", hwnd)
	}
	var wr rect
	ok, _, err := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&wr)))
	if ok == 0 {
		return image.Rectangle{}, fmt.Errorf("GetWindowRect(%#x): %w", hwnd, err)
	}
	r := wr.image()
	if r.Empty() {
		return image.Rectangle{}, errors.New("window is minimised or has empty bounds")
	}
	return r, nil
}

// grabWindow copies the window's current contents into a BGRA texture. The
// size follows the window, so resizes surface as frames of a new size.
func grabWindow(hwnd uintptr, includeCursor bool) (gpu.Texture, error) {
	r, err := windowRect(hwnd)
	if err != nil {
		return nil, err
	}
	w, h := r.Dx(), r.Dy()

	winDC, _, _ := procGetWindowDC.Call(hwnd)
	if winDC == 0 {
		return nil, fmt.Errorf("GetWindowDC(%#x) failed", hwnd)
	}
	defer procReleaseDC.Call(hwnd, winDC)

	memDC, _, err := procCreateCompatibleDC.Call(winDC)
	if memDC == 0 {
		return nil, fmt.Errorf("CreateCompatibleDC: %w", err)
	}
	defer procDeleteDC.Call(memDC)

	var bi bitmapInfo
	bi.Header.BiSize = uint32(unsafe.Sizeof(bi.Header))
	bi.Header.BiWidth = int32(w)
	bi.Header.BiHeight = -int32(h) // top-down
	bi.Header.BiPlanes = 1
	bi.Header.BiBitCount = 32
	bi.Header.BiCompression = biRGB
	bi.Header.BiSizeImage = uint32(w * h * 4)

	var bits unsafe.Pointer
	bmp, _, err := procCreateDIBSection.Call(memDC, uintptr(unsafe.Pointer(&bi)), dibRGBColors, uintptr(unsafe.Pointer(&bits)), 0, 0)
	if bmp == 0 {
		return nil, fmt.Errorf("CreateDIBSection: %w", err)
	}
	defer procDeleteObject.Call(bmp)

	if prev, _, err := procSelectObject.Call(memDC, bmp); prev == 0 || prev == ^uintptr(0) {
		return nil, fmt.Errorf("SelectObject: %w", err)
	}
	if ok, _, err := procBitBlt.Call(memDC, 0, 0, uintptr(w), uintptr(h), winDC, 0, 0, srccopy|captureblt); ok == 0 {
		return nil, fmt.Errorf("BitBlt %dx%d: %w", w, h, err)
	}
	if includeCursor {
		drawCursor(memDC, r)
	}

	n := w * h * 4
	src := unsafe.Slice((*byte)(bits), n)
	pix := make([]byte, n)
	copy(pix, src)
	// GDI leaves alpha undefined.
	for i := 3; i < n; i += 4 {
		pix[i] = 0xFF
	}
	return gpu.NewTexture(w, h, w*4, gputypes.TextureFormatBGRA8Unorm, pix)
}

// drawCursor paints the current cursor into dc when it is over r. The icon
// hotspot offset is not applied.
func drawCursor(dc uintptr, r image.Rectangle) {
	ci := cursorInfo{CbSize: uint32(unsafe.Sizeof(cursorInfo{}))}
	if ok, _, _ := procGetCursorInfo.Call(uintptr(unsafe.Pointer(&ci))); ok == 0 {
		return
	}
	if ci.Flags&cursorShowing == 0 || ci.HCursor == 0 {
		return
	}
	p := image.Pt(int(ci.PtScreenPos.X), int(ci.PtScreenPos.Y))
	if !p.In(r) {
		return
	}
	x, y := p.X-r.Min.X, p.Y-r.Min.Y
	_, _, _ = procDrawIconEx.Call(dc, uintptr(x), uintptr(y), ci.HCursor, 0, 0, 0, 0, diNormal)
}
