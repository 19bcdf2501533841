package imageprocessing

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
)

// Fit selects how a raster is mapped onto target dimensions.
type Fit int

const (
	// FitCover scales to fill the target and crops the overflow.
	FitCover Fit = iota
	// FitContain scales to fit inside the target and pads the remainder.
	FitContain
	// FitFill stretches to the target ignoring aspect ratio.
	FitFill
)

// Anchor selects which vertical edge is preserved when cover or contain
// leaves slack on the Y axis. Horizontal slack is always centered.
type Anchor int

const (
	AnchorCenter Anchor = iota
	AnchorTop
	AnchorBottom
)

func (f Fit) String() string {
	switch f {
	case FitCover:
		return "cover"
	case FitContain:
		return "contain"
	case FitFill:
		return "fill"
	}
	return "unknown"
}

func (a Anchor) String() string {
	switch a {
	case AnchorCenter:
		return "center"
	case AnchorTop:
		return "top"
	case AnchorBottom:
		return "bottom"
	}
	return "unknown"
}

func ParseFit(s string) (Fit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cover":
		return FitCover, nil
	case "contain":
		return FitContain, nil
	case "fill":
		return FitFill, nil
	}
	return FitCover, fmt.Errorf("invalid fit %q (must be 'cover', 'contain' or 'fill')", s)
}

func ParseAnchor(s string) (Anchor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "center":
		return AnchorCenter, nil
	case "top":
		return AnchorTop, nil
	case "bottom":
		return AnchorBottom, nil
	}
	return AnchorCenter, fmt.Errorf("invalid anchor %q (must be 'center', 'top' or 'bottom')", s)
}

// Resize maps r onto exactly width x height pixels using the fit policy.
func Resize(r *Raster, width, height int, fit Fit, anchor Anchor) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("target dimensions must be positive, got %dx%d", width, height)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return nil, fmt.Errorf("source raster is empty")
	}
	if r.Width == width && r.Height == height {
		return r, nil
	}

	var out *image.NRGBA
	switch fit {
	case FitFill:
		out = scaleTo(r.Image, width, height)
	case FitCover:
		scale := math.Max(float64(width)/float64(r.Width), float64(height)/float64(r.Height))
		scaledW := maxInt(width, int(math.Ceil(float64(r.Width)*scale)))
		scaledH := maxInt(height, int(math.Ceil(float64(r.Height)*scale)))
		scaled := scaleTo(r.Image, scaledW, scaledH)

		x0 := (scaledW - width) / 2
		y0 := anchorOffset(scaledH-height, anchor)
		out = image.NewNRGBA(image.Rect(0, 0, width, height))
		draw.Draw(out, out.Bounds(), scaled, image.Pt(x0, y0), draw.Src)
	case FitContain:
		scaledW, scaledH := computeScaledDimensions(r.Width, r.Height, width, height)
		scaled := scaleTo(r.Image, scaledW, scaledH)

		out = createTargetCanvas(width, height, color.White)
		x0 := (width - scaledW) / 2
		y0 := anchorOffset(height-scaledH, anchor)
		draw.Draw(out, image.Rect(x0, y0, x0+scaledW, y0+scaledH), scaled, image.Point{}, draw.Src)
	default:
		return nil, fmt.Errorf("unsupported fit %d", fit)
	}

	return &Raster{
		Image:    out,
		Width:    width,
		Height:   height,
		Channels: r.Channels,
		Format:   r.Format,
	}, nil
}

func scaleTo(src image.Image, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

func anchorOffset(slack int, anchor Anchor) int {
	if slack <= 0 {
		return 0
	}
	switch anchor {
	case AnchorTop:
		return 0
	case AnchorBottom:
		return slack
	}
	return slack / 2
}

func computeScaledDimensions(originalWidth, originalHeight, targetWidth, targetHeight int) (int, int) {
	originalAspect := float64(originalWidth) / float64(originalHeight)
	targetAspect := float64(targetWidth) / float64(targetHeight)
	if originalAspect > targetAspect {
		return targetWidth, maxInt(1, int(float64(targetWidth)/originalAspect))
	}
	return maxInt(1, int(float64(targetHeight)*originalAspect)), targetHeight
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
