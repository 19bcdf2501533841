package imageprocessing

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

var (
	red  = color.NRGBA{255, 0, 0, 255}
	blue = color.NRGBA{0, 0, 255, 255}
)

// newBandedRaster returns a raster whose top half is red and bottom half blue.
func newBandedRaster(t *testing.T, w, h int) *Raster {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		c := red
		if y >= h/2 {
			c = blue
		}
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return NewRaster(img, "png")
}

func encodeTestPNG(t *testing.T, r *Raster) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, r.Image); err != nil {
		t.Fatalf("failed to encode test PNG: %v", err)
	}
	return buf.Bytes()
}

func assertColorNear(t *testing.T, got color.NRGBA, want color.NRGBA, label string) {
	t.Helper()
	diff := func(a, b uint8) int {
		if a > b {
			return int(a - b)
		}
		return int(b - a)
	}
	if diff(got.R, want.R) > 8 || diff(got.G, want.G) > 8 || diff(got.B, want.B) > 8 {
		t.Errorf("%s: got color %v, want about %v", label, got, want)
	}
}
