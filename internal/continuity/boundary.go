package continuity

import (
	"context"
	"image"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jo-hoe/goseam/internal/backend/database"
	"github.com/jo-hoe/goseam/internal/backend/imageprocessing"
	"github.com/jo-hoe/goseam/internal/common"
)

type BoundaryRequest struct {
	UpperSectionID int64  `json:"upperSectionId" validate:"required"`
	LowerSectionID int64  `json:"lowerSectionId" validate:"required"`
	OffsetPixels   int    `json:"offsetPixels" validate:"required"`
	DisplayWidth   int    `json:"displayWidth,omitempty" validate:"gte=0"`
	UserID         string `json:"-"`
}

type ImageRef struct {
	ID     int64  `json:"id"`
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type BoundaryResult struct {
	UpperImage   ImageRef `json:"upperImage"`
	LowerImage   ImageRef `json:"lowerImage"`
	ActualOffset int      `json:"actualOffset"`
	AppliedCut   int      `json:"appliedCut"`
}

func refOf(img *database.Image) ImageRef {
	return ImageRef{ID: img.ID, Path: img.Path, Width: img.Width, Height: img.Height}
}

// AdjustBoundary moves the seam between two stacked sections by removing
// rows next to it. A positive offset moves the seam down by trimming the top
// of the lower image; a negative one trims the bottom of the upper image.
// Both sections are repointed at freshly uploaded images.
func (s *Service) AdjustBoundary(ctx context.Context, req BoundaryRequest) (*BoundaryResult, error) {
	if req.OffsetPixels == 0 {
		return nil, common.InvalidRequest("offsetPixels must be non-zero")
	}
	if req.UpperSectionID == req.LowerSectionID {
		return nil, common.InvalidRequest("upper and lower section must differ")
	}
	if req.DisplayWidth < 0 {
		return nil, common.InvalidRequest("displayWidth must not be negative")
	}
	displayWidth := req.DisplayWidth
	if displayWidth == 0 {
		displayWidth = s.settings.DisplayWidth
	}

	_, upperImage, err := s.loadSectionImage(ctx, req.UpperSectionID)
	if err != nil {
		return nil, err
	}
	_, lowerImage, err := s.loadSectionImage(ctx, req.LowerSectionID)
	if err != nil {
		return nil, err
	}

	scale, err := NewScale(upperImage.Width, displayWidth)
	if err != nil {
		return nil, common.InvalidRequest("%v", err)
	}
	actualOffset := scale.ToSource(req.OffsetPixels)

	var upper, lower *imageprocessing.Raster
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		upper, err = s.fetchRaster(gctx, upperImage.Path)
		return err
	})
	g.Go(func() (err error) {
		lower, err = s.fetchRaster(gctx, lowerImage.Path)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var cut int
	switch {
	case actualOffset > 0:
		cut = ClampCut(actualOffset, lower.Height, s.settings.MinSectionHeight)
		if cut > 0 {
			lower, err = imageprocessing.ExtractRegion(lower, image.Rect(0, cut, lower.Width, lower.Height))
		}
	case actualOffset < 0:
		cut = ClampCut(-actualOffset, upper.Height, s.settings.MinSectionHeight)
		if cut > 0 {
			upper, err = imageprocessing.ExtractRegion(upper, image.Rect(0, 0, upper.Width, upper.Height-cut))
		}
	}
	if err != nil {
		return nil, common.RasterError(err, "failed to cut at boundary")
	}
	if cut != abs(actualOffset) {
		slog.Warn("boundary cut clamped",
			"upper_section_id", req.UpperSectionID,
			"lower_section_id", req.LowerSectionID,
			"requested_offset", actualOffset,
			"applied_cut", cut)
	}

	var newUpper, newLower *database.Image
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		newUpper, err = s.uploadRaster(gctx, "sections", upper, database.SourceBoundaryAdjust)
		return err
	})
	g.Go(func() (err error) {
		newLower, err = s.uploadRaster(gctx, "sections", lower, database.SourceBoundaryAdjust)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results, err := s.db.Substitute(ctx,
		database.Substitution{SectionID: req.UpperSectionID, NewImage: newUpper, UserID: req.UserID, ActionType: database.ActionBoundaryAdjust},
		database.Substitution{SectionID: req.LowerSectionID, NewImage: newLower, UserID: req.UserID, ActionType: database.ActionBoundaryAdjust},
	)
	if err != nil {
		return nil, substitutionError(err)
	}

	slog.Info("boundary adjusted",
		"upper_section_id", req.UpperSectionID,
		"lower_section_id", req.LowerSectionID,
		"offset_pixels", req.OffsetPixels,
		"scale_factor", scale.Factor(),
		"actual_offset", actualOffset,
		"applied_cut", cut)

	return &BoundaryResult{
		UpperImage:   refOf(results[0].Image),
		LowerImage:   refOf(results[1].Image),
		ActualOffset: actualOffset,
		AppliedCut:   cut,
	}, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
