package imageprocessing

import (
	"fmt"
	"image"
)

// ExtractRegion copies rect out of r into a new origin-anchored raster.
func ExtractRegion(r *Raster, rect image.Rectangle) (*Raster, error) {
	if rect.Empty() {
		return nil, fmt.Errorf("extract region %v is empty", rect)
	}
	if !rect.In(r.Bounds()) {
		return nil, fmt.Errorf("extract region %v exceeds image bounds %v", rect, r.Bounds())
	}

	w, h := rect.Dx(), rect.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	src := r.Image
	rowBytes := w * 4

	parallelFor(h, func(y int) {
		srcOff := src.PixOffset(rect.Min.X, rect.Min.Y+y)
		dstOff := dst.PixOffset(0, y)
		copy(dst.Pix[dstOff:dstOff+rowBytes], src.Pix[srcOff:srcOff+rowBytes])
	})

	return &Raster{
		Image:    dst,
		Width:    w,
		Height:   h,
		Channels: r.Channels,
		Format:   r.Format,
	}, nil
}

// TopStrip returns the top height rows of r.
func TopStrip(r *Raster, height int) (*Raster, error) {
	return ExtractRegion(r, image.Rect(0, 0, r.Width, height))
}

// BottomStrip returns the bottom height rows of r.
func BottomStrip(r *Raster, height int) (*Raster, error) {
	return ExtractRegion(r, image.Rect(0, r.Height-height, r.Width, r.Height))
}
