package continuity

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jo-hoe/goseam/internal/backend/database"
	"github.com/jo-hoe/goseam/internal/backend/imageprocessing"
	"github.com/jo-hoe/goseam/internal/common"
)

const importUploadConcurrency = 4

type ImportSegment struct {
	Data []byte
	Role string
}

type ImportRequest struct {
	OwnerID    string
	Title      string
	Segments   []ImportSegment
	SourceType database.SourceType
}

type ImportResult struct {
	Page     *database.Page
	Sections []*database.Section
	BatchID  string
}

// newBatchID joins the 13 digit millisecond token with a random suffix so
// imports landing in the same millisecond never share keys.
func newBatchID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}

// ImportPage stores a page whose sections are the given segments, top to
// bottom. All segment images share one batch id and carry their index, which
// is what GetHistory later uses to find them as originals.
func (s *Service) ImportPage(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if req.OwnerID == "" {
		return nil, common.InvalidRequest("import needs an owner")
	}
	if len(req.Segments) == 0 {
		return nil, common.InvalidRequest("import needs at least one segment")
	}
	source := req.SourceType
	if source == "" {
		source = database.SourceImport
	}
	if !source.Valid() {
		return nil, common.InvalidRequest("unknown source type %q", source)
	}

	batchID := newBatchID(s.now())
	segments := make([]database.ImportSegment, len(req.Segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(importUploadConcurrency)
	for i, segment := range req.Segments {
		g.Go(func() error {
			image, err := s.importSegment(gctx, batchID, i, segment.Data, source)
			if err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}
			segments[i] = database.ImportSegment{Image: image, Role: segment.Role}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	page, sections, err := s.db.ImportPage(ctx, req.OwnerID, req.Title, segments)
	if err != nil {
		return nil, fmt.Errorf("failed to store imported page: %w", err)
	}

	slog.Info("page imported", "page_id", page.ID, "batch_id", batchID, "sections", len(sections))
	return &ImportResult{Page: page, Sections: sections, BatchID: batchID}, nil
}

func (s *Service) importSegment(ctx context.Context, batchID string, index int, data []byte, source database.SourceType) (*database.Image, error) {
	if s.importer != nil {
		processed, err := s.importer.Execute(data)
		if err != nil {
			return nil, common.RasterError(err, "import pipeline failed")
		}
		data = processed
	}

	raster, err := imageprocessing.Decode(data)
	if err != nil {
		return nil, common.RasterError(err, "failed to decode segment")
	}
	encoded, err := raster.EncodePNG()
	if err != nil {
		return nil, common.RasterError(err, "failed to encode segment")
	}

	key := fmt.Sprintf("imports/%s-seg-%d.png", batchID, index)
	path, err := s.images.UploadNamed(ctx, key, encoded, pngContentType)
	if err != nil {
		return nil, common.UploadFailed(err, "failed to upload segment")
	}

	segmentIndex := index
	return &database.Image{
		Path:          path,
		Width:         raster.Width,
		Height:        raster.Height,
		MimeType:      pngContentType,
		SourceType:    source,
		ImportBatchID: batchID,
		SegmentIndex:  &segmentIndex,
	}, nil
}
