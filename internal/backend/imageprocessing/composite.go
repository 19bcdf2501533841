package imageprocessing

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// Layer places a raster at an offset on a composite canvas.
type Layer struct {
	Raster *Raster
	X      int
	Y      int
}

// Composite draws layers in order onto a width x height canvas filled with
// background. Nil layers are skipped; a nil background leaves the canvas
// transparent.
func Composite(width, height int, background color.Color, layers ...Layer) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("canvas dimensions must be positive, got %dx%d", width, height)
	}

	canvas := createTargetCanvas(width, height, background)
	channels := 0
	for i, layer := range layers {
		if layer.Raster == nil {
			continue
		}
		target := image.Rect(layer.X, layer.Y, layer.X+layer.Raster.Width, layer.Y+layer.Raster.Height)
		if !target.Overlaps(canvas.Bounds()) {
			return nil, fmt.Errorf("layer %d at %v lies outside canvas %v", i, target, canvas.Bounds())
		}
		draw.Draw(canvas, target, layer.Raster.Image, image.Point{}, draw.Over)
		if layer.Raster.Channels > channels {
			channels = layer.Raster.Channels
		}
	}
	if channels == 0 {
		channels = 4
	}

	return &Raster{
		Image:    canvas,
		Width:    width,
		Height:   height,
		Channels: channels,
		Format:   "png",
	}, nil
}
