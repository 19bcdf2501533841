package continuity

import (
	"fmt"
	"math"
)

// Scale converts between the editor's display pixel space and the native
// pixel space of a source image. The editor renders every section at the
// same display width, so one factor covers both axes.
type Scale struct {
	SourceWidth  int
	DisplayWidth int
}

func NewScale(sourceWidth, displayWidth int) (Scale, error) {
	if sourceWidth <= 0 {
		return Scale{}, fmt.Errorf("source width must be positive, got %d", sourceWidth)
	}
	if displayWidth <= 0 {
		return Scale{}, fmt.Errorf("display width must be positive, got %d", displayWidth)
	}
	return Scale{SourceWidth: sourceWidth, DisplayWidth: displayWidth}, nil
}

// Factor is the number of source pixels per display pixel.
func (s Scale) Factor() float64 {
	return float64(s.SourceWidth) / float64(s.DisplayWidth)
}

// ToSource maps a signed display-space distance to source pixels, rounding
// half away from zero so +d and -d map to the same magnitude.
func (s Scale) ToSource(displayPixels int) int {
	return int(math.Round(float64(displayPixels) * s.Factor()))
}

func (s Scale) ToDisplay(sourcePixels int) int {
	return int(math.Round(float64(sourcePixels) / s.Factor()))
}

// RatioToPixels maps a normalized 0..1 position onto an extent in pixels.
func RatioToPixels(ratio float64, extent int) int {
	ratio = math.Max(0, math.Min(1, ratio))
	return int(math.Round(ratio * float64(extent)))
}

// PixelsToRatio is the inverse of RatioToPixels.
func PixelsToRatio(pixels, extent int) float64 {
	if extent <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, float64(pixels)/float64(extent)))
}

// ClampCut limits how many rows may be removed from an image of the given
// height so that at least minHeight rows remain. A result of zero means no
// cut is possible.
func ClampCut(requested, height, minHeight int) int {
	cut := min(requested, height-minHeight)
	if cut < 0 {
		return 0
	}
	return cut
}

// StripPolicy sizes a context strip as min(MaxPixels, Ratio*height).
type StripPolicy struct {
	MaxPixels int     `yaml:"maxPixels"`
	Ratio     float64 `yaml:"ratio"`
}

func (p StripPolicy) Height(imageHeight int) int {
	if imageHeight <= 0 {
		return 0
	}
	h := min(p.MaxPixels, int(math.Round(p.Ratio*float64(imageHeight))))
	return max(1, min(h, imageHeight))
}
