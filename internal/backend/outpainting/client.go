package outpainting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jo-hoe/goseam/internal/backend/imageprocessing"
	"github.com/jo-hoe/goseam/internal/common"
)

// Request describes one synthesis: context strips, an optional style
// reference and the exact raster the caller needs back.
type Request struct {
	Context     []*imageprocessing.Raster
	Reference   *ContextImage
	Instruction Instruction
	// Anchor keeps this vertical edge of the model output when the cover fit
	// has to crop, so the edge that meets existing pixels is preserved.
	Anchor imageprocessing.Anchor
}

type Client struct {
	model Model
}

func NewClient(model Model) *Client {
	return &Client{model: model}
}

// Outpaint runs the model and returns a raster of exactly
// Instruction.Width x Instruction.Height pixels.
func (c *Client) Outpaint(ctx context.Context, req Request) (*imageprocessing.Raster, error) {
	width, height := req.Instruction.Width, req.Instruction.Height
	if width <= 0 || height <= 0 {
		return nil, common.InvalidRequest("synthesis target must be positive, got %dx%d", width, height)
	}

	images := make([]ContextImage, 0, len(req.Context)+1)
	for _, r := range req.Context {
		data, err := r.EncodePNG()
		if err != nil {
			return nil, common.RasterError(err, "failed to encode context strip")
		}
		images = append(images, ContextImage{Data: data, MIMEType: "image/png"})
	}
	if req.Reference != nil {
		images = append(images, *req.Reference)
	}

	start := time.Now()
	data, err := c.model.Synthesize(ctx, images, req.Instruction.String())
	elapsed := time.Since(start)
	if err != nil {
		slog.Error("synthesis failed", "task", req.Instruction.Task, "duration_ms", elapsed.Milliseconds(), "error", err)
		return nil, common.ModelUnavailable(err, common.SynthesisFailedMessage)
	}
	if len(data) == 0 {
		slog.Warn("synthesis returned no image", "task", req.Instruction.Task, "duration_ms", elapsed.Milliseconds())
		return nil, common.ModelUnavailable(ErrNoImage, common.SynthesisFailedMessage)
	}

	raster, err := imageprocessing.Decode(data)
	if err != nil {
		return nil, common.ModelUnavailable(fmt.Errorf("%w: %v", ErrNoImage, err), common.SynthesisFailedMessage)
	}

	fitted, err := imageprocessing.Resize(raster, width, height, imageprocessing.FitCover, req.Anchor)
	if err != nil {
		return nil, common.RasterError(err, "failed to fit synthesized image")
	}

	slog.Info("synthesis completed",
		"task", req.Instruction.Task,
		"model_width", raster.Width,
		"model_height", raster.Height,
		"width", width,
		"height", height,
		"duration_ms", elapsed.Milliseconds())
	return fitted, nil
}
