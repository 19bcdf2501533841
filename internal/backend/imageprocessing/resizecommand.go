package imageprocessing

import (
	"fmt"
	"log/slog"
)

// ResizeParams represents typed parameters for resize command
type ResizeParams struct {
	Width  int
	Height int
	Fit    Fit
	Anchor Anchor
}

// NewResizeParamsFromMap creates ResizeParams from a generic map.
// A zero width or height is derived from the source aspect ratio at execution time.
func NewResizeParamsFromMap(params map[string]any) (*ResizeParams, error) {
	p := commandParams(params)
	width := p.intOr("width", 0)
	height := p.intOr("height", 0)
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("dimensions must not be negative, got %dx%d", width, height)
	}
	if width == 0 && height == 0 {
		return nil, fmt.Errorf("at least one of width or height must be set")
	}

	fit, err := ParseFit(p.stringOr("fit", "cover"))
	if err != nil {
		return nil, err
	}
	anchor, err := ParseAnchor(p.stringOr("anchor", "center"))
	if err != nil {
		return nil, err
	}

	return &ResizeParams{Width: width, Height: height, Fit: fit, Anchor: anchor}, nil
}

// ResizeCommand resizes an image with a fit policy
type ResizeCommand struct {
	name   string
	params *ResizeParams
}

// NewResizeCommand creates a new resize command from configuration parameters
func NewResizeCommand(params map[string]any) (Command, error) {
	typedParams, err := NewResizeParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &ResizeCommand{name: "ResizeCommand", params: typedParams}, nil
}

func (c *ResizeCommand) Name() string {
	return c.name
}

// Execute resizes the image to the configured dimensions
func (c *ResizeCommand) Execute(imageData []byte) ([]byte, error) {
	r, err := Decode(imageData)
	if err != nil {
		return nil, err
	}

	width, height := c.targetSize(r.Width, r.Height)
	slog.Debug("ResizeCommand: resizing",
		"source_width", r.Width,
		"source_height", r.Height,
		"target_width", width,
		"target_height", height,
		"fit", c.params.Fit.String(),
		"anchor", c.params.Anchor.String())

	out, err := Resize(r, width, height, c.params.Fit, c.params.Anchor)
	if err != nil {
		return nil, err
	}
	return out.EncodePNG()
}

func (c *ResizeCommand) targetSize(srcW, srcH int) (int, int) {
	width, height := c.params.Width, c.params.Height
	if width == 0 {
		width = maxInt(1, int(float64(srcW)*float64(height)/float64(srcH)+0.5))
	}
	if height == 0 {
		height = maxInt(1, int(float64(srcH)*float64(width)/float64(srcW)+0.5))
	}
	return width, height
}

// GetParams returns the typed parameters
func (c *ResizeCommand) GetParams() *ResizeParams {
	return c.params
}

func init() {
	if err := DefaultRegistry.Register("ResizeCommand", NewResizeCommand); err != nil {
		panic(fmt.Sprintf("failed to register ResizeCommand: %v", err))
	}
}
