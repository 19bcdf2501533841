package continuity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jo-hoe/goseam/internal/backend/database"
	"github.com/jo-hoe/goseam/internal/backend/imageprocessing"
	"github.com/jo-hoe/goseam/internal/backend/outpainting"
	"github.com/jo-hoe/goseam/internal/common"
)

type GenerateRequest struct {
	Prompt           string `json:"prompt" validate:"required"`
	Width            int    `json:"width" validate:"required,gt=0"`
	Height           int    `json:"height" validate:"required,gt=0"`
	PrevImageURL     string `json:"prevImageUrl,omitempty"`
	NextImageURL     string `json:"nextImageUrl,omitempty"`
	DesignDefinition string `json:"designDefinition,omitempty"`
}

type GenerateResult struct {
	ImageURL string `json:"imageUrl"`
	MediaID  int64  `json:"mediaId"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// GenerateSectionImage synthesizes an image for a new section that continues
// the bottom edge of the previous section and leads into the top edge of the
// next one. It creates an Image row but touches no section.
func (s *Service) GenerateSectionImage(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, common.InvalidRequest("prompt must not be empty")
	}
	limit := s.settings.MaxGenerateSize
	if req.Width <= 0 || req.Height <= 0 || req.Width > limit || req.Height > limit {
		return nil, common.InvalidRequest("target size must be between 1 and %d pixels per side, got %dx%d", limit, req.Width, req.Height)
	}

	var contextStrips []*imageprocessing.Raster
	hasAbove, hasBelow := false, false

	if req.PrevImageURL != "" {
		strip, err := s.neighbourStrip(ctx, req.PrevImageURL, imageprocessing.BottomStrip)
		if err != nil {
			return nil, err
		}
		contextStrips = append(contextStrips, strip)
		hasAbove = true
	}
	if req.NextImageURL != "" {
		strip, err := s.neighbourStrip(ctx, req.NextImageURL, imageprocessing.TopStrip)
		if err != nil {
			return nil, err
		}
		contextStrips = append(contextStrips, strip)
		hasBelow = true
	}

	anchor := imageprocessing.AnchorCenter
	switch {
	case hasAbove && !hasBelow:
		anchor = imageprocessing.AnchorTop
	case hasBelow && !hasAbove:
		anchor = imageprocessing.AnchorBottom
	}

	generated, err := s.outpainter.Outpaint(ctx, outpainting.Request{
		Context: contextStrips,
		Instruction: outpainting.Instruction{
			Task:             outpainting.TaskNewSection,
			Width:            req.Width,
			Height:           req.Height,
			Intent:           req.Prompt,
			HasAbove:         hasAbove,
			HasBelow:         hasBelow,
			DesignDefinition: req.DesignDefinition,
		},
		Anchor: anchor,
	})
	if err != nil {
		return nil, err
	}

	draft, err := s.uploadRaster(ctx, "generated", generated, database.SourceGenerated)
	if err != nil {
		return nil, err
	}
	image, err := s.db.CreateImage(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to store generated image: %w", err)
	}

	slog.Info("section image generated",
		"image_id", image.ID,
		"width", image.Width,
		"height", image.Height,
		"has_above", hasAbove,
		"has_below", hasBelow)

	return &GenerateResult{
		ImageURL: image.Path,
		MediaID:  image.ID,
		Width:    image.Width,
		Height:   image.Height,
	}, nil
}

// neighbourStrip fetches a neighbouring section's image and cuts the edge
// facing the new section.
func (s *Service) neighbourStrip(ctx context.Context, url string, edge func(*imageprocessing.Raster, int) (*imageprocessing.Raster, error)) (*imageprocessing.Raster, error) {
	neighbour, err := s.fetchRaster(ctx, url)
	if err != nil {
		return nil, err
	}
	strip, err := edge(neighbour, s.settings.GenerationStrip.Height(neighbour.Height))
	if err != nil {
		return nil, common.RasterError(err, "failed to extract context strip")
	}
	return strip, nil
}
