package imageprocessing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const FormatSVG = "svg"

// Raster is a decoded image buffer together with the metadata the edit
// services reason about. Image always starts at the origin.
type Raster struct {
	Image    *image.NRGBA
	Width    int
	Height   int
	Channels int
	Format   string
}

// NewRaster converts img into an origin-anchored NRGBA raster.
func NewRaster(img image.Image, format string) *Raster {
	b := img.Bounds()
	channels := channelsOf(img.ColorModel())

	nrgba, ok := img.(*image.NRGBA)
	if !ok || b.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}

	return &Raster{
		Image:    nrgba,
		Width:    b.Dx(),
		Height:   b.Dy(),
		Channels: channels,
		Format:   format,
	}
}

// Decode decodes PNG, JPEG, GIF, WebP, BMP, TIFF and explicitly sized SVG data.
func Decode(data []byte) (*Raster, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to decode image: empty data")
	}
	if isSVGData(data) {
		img, err := rasterizeSVG(data, 0, 0)
		if err != nil {
			return nil, err
		}
		return NewRaster(img, FormatSVG), nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return NewRaster(img, format), nil
}

// DecodeConfig returns the pixel dimensions and format without decoding pixels.
func DecodeConfig(data []byte) (width, height int, format string, err error) {
	if isSVGData(data) {
		w, h, ok := parseSvgExplicitSize(data)
		if !ok {
			return 0, 0, "", fmt.Errorf("SVG has no explicit size")
		}
		return w, h, FormatSVG, nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("failed to read image config: %w", err)
	}
	return cfg.Width, cfg.Height, format, nil
}

// EncodePNG encodes the raster as PNG bytes.
func (r *Raster) EncodePNG() ([]byte, error) {
	return encodePNG(r.Image)
}

// Bounds returns the raster rectangle.
func (r *Raster) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.Width, r.Height)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	bb := img.Bounds()
	// Pre-grow buffer to reduce re-allocations; rough heuristic: 1 byte per pixel
	buf.Grow(bb.Dx() * bb.Dy())
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG image: %w", err)
	}
	return buf.Bytes(), nil
}

func channelsOf(model color.Model) int {
	switch model {
	case color.GrayModel, color.Gray16Model:
		return 1
	case color.YCbCrModel, color.CMYKModel:
		return 3
	}
	return 4
}

func createTargetCanvas(w, h int, bg color.Color) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if bg != nil {
		draw.Draw(dst, dst.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)
	}
	return dst
}
