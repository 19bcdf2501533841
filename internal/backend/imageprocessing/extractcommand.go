package imageprocessing

import (
	"fmt"
	"image"
	"log/slog"
)

// ExtractParams selects a rectangular region in source pixels
type ExtractParams struct {
	X      int
	Y      int
	Width  int
	Height int
}

// NewExtractParamsFromMap creates ExtractParams from a generic map
func NewExtractParamsFromMap(params map[string]any) (*ExtractParams, error) {
	values := commandParams(params)
	if err := values.require("width", "height"); err != nil {
		return nil, err
	}
	p := &ExtractParams{
		X:      values.intOr("x", 0),
		Y:      values.intOr("y", 0),
		Width:  values.intOr("width", 0),
		Height: values.intOr("height", 0),
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ExtractParams) validate() error {
	if p.X < 0 || p.Y < 0 {
		return fmt.Errorf("offset must not be negative, got (%d,%d)", p.X, p.Y)
	}
	if p.Width <= 0 {
		return fmt.Errorf("width must be positive, got %d", p.Width)
	}
	if p.Height <= 0 {
		return fmt.Errorf("height must be positive, got %d", p.Height)
	}
	return nil
}

// Rect returns the region as an image rectangle
func (p *ExtractParams) Rect() image.Rectangle {
	return image.Rect(p.X, p.Y, p.X+p.Width, p.Y+p.Height)
}

// ExtractCommand cuts a fixed region out of an image
type ExtractCommand struct {
	name   string
	params *ExtractParams
}

// NewExtractCommand creates a new extract command from configuration parameters
func NewExtractCommand(params map[string]any) (Command, error) {
	typedParams, err := NewExtractParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &ExtractCommand{name: "ExtractCommand", params: typedParams}, nil
}

// NewExtractCommandWithParams creates a new extract command from a rectangle
func NewExtractCommandWithParams(rect image.Rectangle) (*ExtractCommand, error) {
	p := &ExtractParams{X: rect.Min.X, Y: rect.Min.Y, Width: rect.Dx(), Height: rect.Dy()}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &ExtractCommand{name: "ExtractCommand", params: p}, nil
}

func (c *ExtractCommand) Name() string {
	return c.name
}

// Execute extracts the configured region and returns it as PNG
func (c *ExtractCommand) Execute(imageData []byte) ([]byte, error) {
	r, err := Decode(imageData)
	if err != nil {
		return nil, err
	}

	slog.Debug("ExtractCommand: extracting region",
		"source_width", r.Width,
		"source_height", r.Height,
		"region", c.params.Rect().String())

	out, err := ExtractRegion(r, c.params.Rect())
	if err != nil {
		return nil, err
	}
	return out.EncodePNG()
}

// GetParams returns the typed parameters
func (c *ExtractCommand) GetParams() *ExtractParams {
	return c.params
}

func init() {
	if err := DefaultRegistry.Register("ExtractCommand", NewExtractCommand); err != nil {
		panic(fmt.Sprintf("failed to register ExtractCommand: %v", err))
	}
}
