package imageprocessing

import (
	"bytes"
	"fmt"
	"log/slog"
)

// hasCorrectPngSignature checks whether the provided data begins with a valid PNG signature
func hasCorrectPngSignature(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	expected := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	return bytes.Equal(data[:8], expected)
}

// PngConverterCommand normalizes any supported input format, SVG included, to PNG
type PngConverterCommand struct {
	name              string
	svgFallbackWidth  int
	svgFallbackHeight int
}

// NewPngConverterCommand creates a new PNG converter command
func NewPngConverterCommand(params map[string]any) (Command, error) {
	w := commandParams(params).intOr("svgFallbackWidth", 0)
	h := commandParams(params).intOr("svgFallbackHeight", 0)
	if w < 0 || h < 0 {
		return nil, fmt.Errorf("SVG fallback size must not be negative, got %dx%d", w, h)
	}

	return &PngConverterCommand{
		name:              "PngConverterCommand",
		svgFallbackWidth:  w,
		svgFallbackHeight: h,
	}, nil
}

func (c *PngConverterCommand) Name() string {
	return c.name
}

func (c *PngConverterCommand) Execute(imageData []byte) ([]byte, error) {
	if hasCorrectPngSignature(imageData) {
		slog.Debug("PngConverterCommand: PNG detected; returning original bytes")
		return imageData, nil
	}

	if isSVGData(imageData) {
		img, err := rasterizeSVG(imageData, c.svgFallbackWidth, c.svgFallbackHeight)
		if err != nil {
			slog.Error("PngConverterCommand: failed to render SVG", "error", err)
			return nil, fmt.Errorf("failed to render SVG to PNG: %w", err)
		}
		return encodePNG(img)
	}

	r, err := Decode(imageData)
	if err != nil {
		slog.Error("PngConverterCommand: failed to decode image", "error", err)
		return nil, err
	}

	slog.Debug("PngConverterCommand: decoded raster image",
		"current_format", r.Format,
		"orig_width", r.Width,
		"orig_height", r.Height)

	return r.EncodePNG()
}

func init() {
	if err := DefaultRegistry.Register("PngConverterCommand", NewPngConverterCommand); err != nil {
		panic(fmt.Sprintf("failed to register PngConverterCommand: %v", err))
	}
}
