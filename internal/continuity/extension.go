package continuity

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jo-hoe/goseam/internal/backend/database"
	"github.com/jo-hoe/goseam/internal/backend/imageprocessing"
	"github.com/jo-hoe/goseam/internal/backend/outpainting"
	"github.com/jo-hoe/goseam/internal/common"
)

type Direction string

const (
	DirectionTop    Direction = "top"
	DirectionBottom Direction = "bottom"
	DirectionBoth   Direction = "both"
)

func (d Direction) includesTop() bool {
	return d == DirectionTop || d == DirectionBoth
}

func (d Direction) includesBottom() bool {
	return d == DirectionBottom || d == DirectionBoth
}

type ExtendRequest struct {
	SectionID    int64     `json:"-"`
	Direction    Direction `json:"direction" validate:"required,oneof=top bottom both"`
	TopAmount    int       `json:"topAmount" validate:"gte=0"`
	BottomAmount int       `json:"bottomAmount" validate:"gte=0"`
	Prompt       string    `json:"prompt" validate:"required"`
	// ReferenceImage is an optional style reference given as a URL or data URL.
	ReferenceImage string `json:"referenceImage,omitempty"`
	UserID         string `json:"-"`
}

type ExtendResult struct {
	ImageID      int64  `json:"imageId"`
	NewImagePath string `json:"newImagePath"`
	NewWidth     int    `json:"newWidth"`
	NewHeight    int    `json:"newHeight"`
	AddedTop     int    `json:"addedTop"`
	AddedBottom  int    `json:"addedBottom"`
}

// amounts returns the per-edge growth the request asks for after applying
// the direction, or an InvalidRequest error.
func (s *Service) amounts(req ExtendRequest) (top, bottom int, err error) {
	switch req.Direction {
	case DirectionTop, DirectionBottom, DirectionBoth:
	default:
		return 0, 0, common.InvalidRequest("direction must be top, bottom or both, got %q", req.Direction)
	}

	if req.Direction.includesTop() {
		top = req.TopAmount
	}
	if req.Direction.includesBottom() {
		bottom = req.BottomAmount
	}

	maxAmount := s.settings.MaxExtension
	if top < 0 || top > maxAmount || bottom < 0 || bottom > maxAmount {
		return 0, 0, common.InvalidRequest("extension amounts must be between 0 and %d pixels, got top=%d bottom=%d", maxAmount, top, bottom)
	}
	if top+bottom < s.settings.MinExtension {
		return 0, 0, common.InvalidRequest("extension must add at least %d pixels in total, got %d", s.settings.MinExtension, top+bottom)
	}
	return top, bottom, nil
}

// ExtendSection grows a section's image at its top and/or bottom edge with
// synthesized content and repoints the section at the result. When any
// requested edge cannot be synthesized the whole request fails.
func (s *Service) ExtendSection(ctx context.Context, req ExtendRequest) (*ExtendResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, common.InvalidRequest("extension prompt must not be empty")
	}
	top, bottom, err := s.amounts(req)
	if err != nil {
		return nil, err
	}

	_, current, err := s.loadSectionImage(ctx, req.SectionID)
	if err != nil {
		return nil, err
	}
	original, err := s.fetchRaster(ctx, current.Path)
	if err != nil {
		return nil, err
	}

	reference, err := s.loadReference(ctx, req.ReferenceImage)
	if err != nil {
		return nil, err
	}

	stripHeight := s.settings.ExtensionStrip.Height(original.Height)
	var topRaster, bottomRaster *imageprocessing.Raster

	g, gctx := errgroup.WithContext(ctx)
	if top > 0 {
		g.Go(func() (err error) {
			topRaster, err = s.synthesizeEdge(gctx, original, stripHeight, top, outpainting.TaskExtendTop, req.Prompt, reference)
			return err
		})
	}
	if bottom > 0 {
		g.Go(func() (err error) {
			bottomRaster, err = s.synthesizeEdge(gctx, original, stripHeight, bottom, outpainting.TaskExtendBottom, req.Prompt, reference)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("section extension failed", "section_id", req.SectionID, "top", top, "bottom", bottom, "error", err)
		return nil, err
	}

	layers := []imageprocessing.Layer{
		{Raster: topRaster, X: 0, Y: 0},
		{Raster: original, X: 0, Y: top},
		{Raster: bottomRaster, X: 0, Y: top + original.Height},
	}
	extended, err := imageprocessing.Composite(original.Width, top+original.Height+bottom, nil, layers...)
	if err != nil {
		return nil, common.RasterError(err, "failed to composite extension")
	}

	draft, err := s.uploadRaster(ctx, "sections", extended, database.SourceGenerated)
	if err != nil {
		return nil, err
	}
	results, err := s.db.Substitute(ctx, database.Substitution{
		SectionID:  req.SectionID,
		NewImage:   draft,
		UserID:     req.UserID,
		ActionType: database.ActionRestore,
		Prompt:     req.Prompt,
	})
	if err != nil {
		return nil, substitutionError(err)
	}
	image := results[0].Image

	slog.Info("section extended",
		"section_id", req.SectionID,
		"original_height", original.Height,
		"added_top", top,
		"added_bottom", bottom,
		"strip_height", stripHeight,
		"image_id", image.ID)

	return &ExtendResult{
		ImageID:      image.ID,
		NewImagePath: image.Path,
		NewWidth:     image.Width,
		NewHeight:    image.Height,
		AddedTop:     top,
		AddedBottom:  bottom,
	}, nil
}

// synthesizeEdge outpaints amount rows beyond one edge of original, using a
// strip of stripHeight rows from that edge as context.
func (s *Service) synthesizeEdge(ctx context.Context, original *imageprocessing.Raster, stripHeight, amount int, task outpainting.Task, prompt string, reference *outpainting.ContextImage) (*imageprocessing.Raster, error) {
	var strip *imageprocessing.Raster
	var err error
	anchor := imageprocessing.AnchorTop
	if task == outpainting.TaskExtendTop {
		strip, err = imageprocessing.TopStrip(original, stripHeight)
		anchor = imageprocessing.AnchorBottom
	} else {
		strip, err = imageprocessing.BottomStrip(original, stripHeight)
	}
	if err != nil {
		return nil, common.RasterError(err, "failed to extract context strip")
	}

	return s.outpainter.Outpaint(ctx, outpainting.Request{
		Context:   []*imageprocessing.Raster{strip},
		Reference: reference,
		Instruction: outpainting.Instruction{
			Task:         task,
			Width:        original.Width,
			Height:       amount,
			Intent:       prompt,
			HasReference: reference != nil,
		},
		Anchor: anchor,
	})
}

// loadReference resolves an optional style reference image.
func (s *Service) loadReference(ctx context.Context, url string) (*outpainting.ContextImage, error) {
	if url == "" {
		return nil, nil
	}
	data, err := s.images.Fetch(ctx, url)
	if err != nil {
		return nil, common.InvalidRequest("reference image could not be loaded: %v", err)
	}
	_, _, format, err := imageprocessing.DecodeConfig(data)
	if err != nil {
		return nil, common.InvalidRequest("reference image is not a supported image: %v", err)
	}
	if format == imageprocessing.FormatSVG {
		raster, err := imageprocessing.Decode(data)
		if err != nil {
			return nil, common.InvalidRequest("reference image is not a supported image: %v", err)
		}
		if data, err = raster.EncodePNG(); err != nil {
			return nil, common.RasterError(err, "failed to encode reference image")
		}
		format = "png"
	}
	return &outpainting.ContextImage{Data: data, MIMEType: "image/" + format}, nil
}
