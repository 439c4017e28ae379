package view

import (
	"image"

	"github.com/soocke/framering-go/ui/images"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// CapturePreview shows one retained frame and a caption describing it.
type CapturePreview interface {
	UpdateFrame(img image.Image, caption string)
	Reset()
}

type capturePreview struct {
	frameLabel   *LabelWidget
	captionLabel *LabelWidget
	targetW      int
	targetH      int
	prevPhoto    *Img // last Tk photo image instance
}

// NewCapturePreview creates the preview label spanning columns 0-4 of row and
// a caption label in the row below. Returns the next free row.
func NewCapturePreview(row, maxW, maxH int) (CapturePreview, int) {
	placeholder := image.NewRGBA(image.Rect(0, 0, 200, 120))
	photo := NewPhoto(Data(images.EncodePNG(placeholder)))
	frame := Label(Image(photo), Borderwidth(1), Relief("sunken"))
	caption := Label(Txt("No frame"), Anchor("w"))
	Grid(frame, Row(row), Column(0), Columnspan(5), Sticky("we"), Padx("0.4m"), Pady("0.4m"))
	Grid(caption, Row(row+1), Column(0), Columnspan(5), Sticky("w"), Padx("0.4m"))
	v := &capturePreview{frameLabel: frame, captionLabel: caption, prevPhoto: photo}
	v.setTargetSize(maxW, maxH)
	return v, row + 2
}

const (
	maxPreviewW = 640
	maxPreviewH = 360
)

func (v *capturePreview) UpdateFrame(img image.Image, caption string) {
	if v.frameLabel == nil || img == nil {
		return
	}
	w, h := v.targetW, v.targetH
	if w <= 0 || h <= 0 {
		w, h = maxPreviewW, maxPreviewH
	}
	pngBytes := images.EncodePNG(images.ScaleToFit(img, w, h))
	// Replace previous photo to avoid retaining obsolete pixel buffers.
	if v.prevPhoto != nil {
		v.prevPhoto.Delete()
	}
	v.prevPhoto = NewPhoto(Data(pngBytes))
	v.frameLabel.Configure(Image(v.prevPhoto))
	if v.captionLabel != nil {
		v.captionLabel.Configure(Txt(caption))
	}
}

func (v *capturePreview) Reset() {
	placeholder := image.NewRGBA(image.Rect(0, 0, 200, 120))
	if v.frameLabel != nil {
		if v.prevPhoto != nil {
			v.prevPhoto.Delete()
		}
		v.prevPhoto = NewPhoto(Data(images.EncodePNG(placeholder)))
		v.frameLabel.Configure(Image(v.prevPhoto))
	}
	if v.captionLabel != nil {
		v.captionLabel.Configure(Txt("No frame"))
	}
}

func (v *capturePreview) setTargetSize(w, h int) {
	if w < 50 {
		w = 50
	}
	if h < 50 {
		h = 50
	}
	v.targetW, v.targetH = w, h
}
