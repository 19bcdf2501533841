package continuity

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jo-hoe/goseam/internal/backend/database"
	"github.com/jo-hoe/goseam/internal/backend/imageprocessing"
	"github.com/jo-hoe/goseam/internal/common"
)

type CropAction string

const (
	CropActionCrop  CropAction = "crop"
	CropActionSplit CropAction = "split"
)

// CropMetadata describes the client-side crop that produced the bytes, in
// source pixels of the section's previous image.
type CropMetadata struct {
	StartY int        `json:"startY"`
	EndY   int        `json:"endY"`
	Action CropAction `json:"action"`
}

type CropRequest struct {
	SectionID   string
	Data        []byte
	ContentType string
	Metadata    CropMetadata
	UserID      string
}

type CropImage struct {
	ID   *int64 `json:"id,omitempty"`
	Path string `json:"path"`
}

type CropResult struct {
	Image     CropImage `json:"image"`
	SectionID *int64    `json:"sectionId,omitempty"`
}

func (m CropMetadata) validate() error {
	switch m.Action {
	case CropActionCrop, CropActionSplit:
	default:
		return common.InvalidRequest("crop action must be crop or split, got %q", m.Action)
	}
	if m.StartY < 0 || m.EndY < 0 {
		return common.InvalidRequest("crop bounds must not be negative")
	}
	if m.EndY != 0 && m.EndY <= m.StartY {
		return common.InvalidRequest("crop endY (%d) must be greater than startY (%d)", m.EndY, m.StartY)
	}
	return nil
}

// CropSection stores an already cropped image for a section verbatim. Sections
// the editor has not saved yet (non-numeric ids) only get the upload; the page
// save links it later.
func (s *Service) CropSection(ctx context.Context, req CropRequest) (*CropResult, error) {
	if len(req.Data) == 0 {
		return nil, common.InvalidRequest("cropped image is empty")
	}
	if req.Metadata.Action == "" {
		req.Metadata.Action = CropActionCrop
	}
	if err := req.Metadata.validate(); err != nil {
		return nil, err
	}

	contentType := req.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(req.Data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, common.InvalidRequest("cropped upload must be an image, got %q", contentType)
	}

	sectionID, persisted := ParseSectionID(req.SectionID)
	if persisted {
		if _, err := s.loadSection(ctx, sectionID); err != nil {
			return nil, err
		}
	}

	path, err := s.images.Upload(ctx, "sections", req.Data, contentType)
	if err != nil {
		return nil, common.UploadFailed(err, "failed to upload cropped image")
	}

	if !persisted {
		slog.Info("cropped image stored for unsaved section", "section_ref", req.SectionID, "path", path)
		return &CropResult{Image: CropImage{Path: path}}, nil
	}

	// Formats without a decoder are stored as 0x0.
	width, height, _, err := imageprocessing.DecodeConfig(req.Data)
	if err != nil {
		slog.Warn("cropped image dimensions unreadable", "section_id", sectionID, "content_type", contentType, "error", err)
		width, height = 0, 0
	}

	results, err := s.db.Substitute(ctx, database.Substitution{
		SectionID: sectionID,
		NewImage: &database.Image{
			Path:       path,
			Width:      width,
			Height:     height,
			MimeType:   contentType,
			SourceType: database.SourceCropped,
		},
		UserID:     req.UserID,
		ActionType: database.ActionCrop,
	})
	if err != nil {
		return nil, substitutionError(err)
	}
	image := results[0].Image

	slog.Info("section cropped",
		"section_id", sectionID,
		"action", req.Metadata.Action,
		"start_y", req.Metadata.StartY,
		"end_y", req.Metadata.EndY,
		"image_id", image.ID)

	return &CropResult{
		Image:     CropImage{ID: &image.ID, Path: image.Path},
		SectionID: &sectionID,
	}, nil
}
