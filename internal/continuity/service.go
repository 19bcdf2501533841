package continuity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jo-hoe/goseam/internal/backend/blobstore"
	"github.com/jo-hoe/goseam/internal/backend/database"
	"github.com/jo-hoe/goseam/internal/backend/imageprocessing"
	"github.com/jo-hoe/goseam/internal/backend/outpainting"
	"github.com/jo-hoe/goseam/internal/common"
)

const pngContentType = "image/png"

// ImageStore is the blob contract the services need.
type ImageStore interface {
	Upload(ctx context.Context, prefix string, data []byte, contentType string) (string, error)
	UploadNamed(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Service implements the section image edit operations.
type Service struct {
	db         database.DatabaseService
	images     ImageStore
	outpainter *outpainting.Client
	settings   Settings
	importer   *imageprocessing.CommandInvoker
	now        func() time.Time
}

type Option func(*Service)

// WithImportPipeline runs every bulk-imported segment through invoker
// before it is stored.
func WithImportPipeline(invoker *imageprocessing.CommandInvoker) Option {
	return func(s *Service) {
		s.importer = invoker
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(db database.DatabaseService, images ImageStore, outpainter *outpainting.Client, settings Settings, opts ...Option) *Service {
	s := &Service{
		db:         db,
		images:     images,
		outpainter: outpainter,
		settings:   settings.WithDefaults(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Settings() Settings {
	return s.settings
}

// ParseSectionID reports whether raw is a persisted (numeric) section id.
// Anything else refers to a section the editor has not saved yet.
func ParseSectionID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Service) loadSection(ctx context.Context, sectionID int64) (*database.Section, error) {
	section, err := s.db.GetSection(ctx, sectionID)
	if err != nil {
		return nil, storeError(err, "section %d", sectionID)
	}
	return section, nil
}

// loadSectionImage returns a section together with the image it currently
// references.
func (s *Service) loadSectionImage(ctx context.Context, sectionID int64) (*database.Section, *database.Image, error) {
	section, err := s.loadSection(ctx, sectionID)
	if err != nil {
		return nil, nil, err
	}
	if section.ImageID == nil {
		return nil, nil, common.NotFound("section %d has no image", sectionID)
	}
	image, err := s.db.GetImageByID(ctx, *section.ImageID)
	if err != nil {
		return nil, nil, storeError(err, "image %d of section %d", *section.ImageID, sectionID)
	}
	if image.Width <= 0 || image.Height <= 0 {
		return nil, nil, common.NotFound("image %d of section %d has no known dimensions", image.ID, sectionID)
	}
	return section, image, nil
}

// fetchRaster downloads and decodes the bytes behind url.
func (s *Service) fetchRaster(ctx context.Context, url string) (*imageprocessing.Raster, error) {
	data, err := s.images.Fetch(ctx, url)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, common.NotFound("image data at %s", url)
	}
	if errors.Is(err, blobstore.ErrHostNotAllowed) || errors.Is(err, blobstore.ErrTooLarge) {
		return nil, common.InvalidRequest("image at %s cannot be used: %v", url, err)
	}
	if err != nil {
		return nil, common.UploadFailed(err, "failed to fetch image data")
	}
	raster, err := imageprocessing.Decode(data)
	if err != nil {
		return nil, common.RasterError(err, "failed to decode image")
	}
	return raster, nil
}

// uploadRaster encodes r as PNG, stores it under prefix and returns an
// unsaved Image row describing it.
func (s *Service) uploadRaster(ctx context.Context, prefix string, r *imageprocessing.Raster, source database.SourceType) (*database.Image, error) {
	data, err := r.EncodePNG()
	if err != nil {
		return nil, common.RasterError(err, "failed to encode image")
	}
	path, err := s.images.Upload(ctx, prefix, data, pngContentType)
	if err != nil {
		return nil, common.UploadFailed(err, "failed to upload image")
	}
	return &database.Image{
		Path:       path,
		Width:      r.Width,
		Height:     r.Height,
		MimeType:   pngContentType,
		SourceType: source,
	}, nil
}

func storeError(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, database.ErrNotFound) {
		return common.NotFound("%s not found", what)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func substitutionError(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return common.NotFound("%v", err)
	}
	return fmt.Errorf("failed to record substitution: %w", err)
}
