package outpainting

import (
	"context"
	"errors"
)

// ErrNoImage is returned when a model answered without usable image data.
var ErrNoImage = errors.New("model returned no image")

// ContextImage is an encoded image handed to the model alongside the
// instruction.
type ContextImage struct {
	Data     []byte
	MIMEType string
}

// Model is a generative image model. Synthesize returns encoded image bytes,
// or nil bytes when the model produced text only.
type Model interface {
	Synthesize(ctx context.Context, images []ContextImage, instruction string) ([]byte, error)
	Close() error
}

type disabledModel struct{}

// NewDisabledModel returns a Model that refuses every request. It keeps the
// non-generative operations usable when no model is configured.
func NewDisabledModel() Model {
	return disabledModel{}
}

func (disabledModel) Synthesize(context.Context, []ContextImage, string) ([]byte, error) {
	return nil, errors.New("no generative model configured")
}

func (disabledModel) Close() error {
	return nil
}
