package backend

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/goseam/internal/backend/blobstore"
	"github.com/jo-hoe/goseam/internal/common"
	"github.com/jo-hoe/goseam/internal/continuity"
	"github.com/jo-hoe/goseam/internal/core"
)

// UserHeader carries the id of the authenticated caller.
const UserHeader = "X-User-ID"

const defaultMaxUploadBytes = 32 << 20

type APIService struct {
	coreService    *core.CoreService
	maxUploadBytes int64
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func NewAPIService(coreService *core.CoreService) *APIService {
	return &APIService{coreService: coreService, maxUploadBytes: defaultMaxUploadBytes}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET(blobstore.PublicPathPrefix+"*", s.blobHandler)

	api := e.Group("/api/sections")
	api.POST("/boundary", s.boundaryHandler)
	api.POST("/generate", s.generateHandler)
	api.POST("/:id/extend", s.extendHandler)
	api.POST("/:id/crop", s.cropHandler)
	api.GET("/:id/history", s.historyHandler)
	api.POST("/:id/history", s.logHistoryHandler)
	api.POST("/:id/revert", s.revertHandler)
}

func (s *APIService) continuity() *continuity.Service {
	return s.coreService.Continuity()
}

func (s *APIService) blobHandler(ctx echo.Context) error {
	key := ctx.Param("*")
	if key == "" {
		return ctx.NoContent(http.StatusNotFound)
	}
	blob, err := s.coreService.Images().Read(ctx.Request().Context(), key)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return ctx.NoContent(http.StatusNotFound)
	}
	if err != nil {
		slog.Error("blobHandler: failed to read blob", "key", key, "error", err)
		return ctx.NoContent(http.StatusInternalServerError)
	}
	// Keys are never reused, so the content is immutable.
	ctx.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	return ctx.Blob(http.StatusOK, blob.ContentType, blob.Data)
}

func (s *APIService) boundaryHandler(ctx echo.Context) error {
	var req continuity.BoundaryRequest
	if err := s.bind(ctx, &req); err != nil {
		return s.respondError(ctx, err)
	}
	req.UserID = userOf(ctx)
	if err := s.continuity().AuthorizeSections(ctx.Request().Context(), req.UserID, req.UpperSectionID, req.LowerSectionID); err != nil {
		return s.respondError(ctx, err)
	}

	result, err := s.continuity().AdjustBoundary(ctx.Request().Context(), req)
	if err != nil {
		return s.respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

func (s *APIService) extendHandler(ctx echo.Context) error {
	sectionID, err := s.authorizedSectionID(ctx)
	if err != nil {
		return s.respondError(ctx, err)
	}
	var req continuity.ExtendRequest
	if err := s.bind(ctx, &req); err != nil {
		return s.respondError(ctx, err)
	}
	req.SectionID = sectionID
	req.UserID = userOf(ctx)

	result, err := s.continuity().ExtendSection(ctx.Request().Context(), req)
	if err != nil {
		return s.respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

func (s *APIService) generateHandler(ctx echo.Context) error {
	if userOf(ctx) == "" {
		return s.respondError(ctx, common.Unauthorized("missing user identity"))
	}
	var req continuity.GenerateRequest
	if err := s.bind(ctx, &req); err != nil {
		return s.respondError(ctx, err)
	}

	result, err := s.continuity().GenerateSectionImage(ctx.Request().Context(), req)
	if err != nil {
		return s.respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

// cropHandler accepts a multipart form with the cropped "image" file and
// either a JSON "metadata" field or plain startY, endY and action fields.
func (s *APIService) cropHandler(ctx echo.Context) error {
	rawID := ctx.Param("id")
	userID := userOf(ctx)
	if err := s.continuity().AuthorizeSection(ctx.Request().Context(), userID, rawID); err != nil {
		return s.respondError(ctx, err)
	}

	file, err := ctx.FormFile("image")
	if err != nil {
		return s.respondError(ctx, common.InvalidRequest("missing image file"))
	}
	src, err := file.Open()
	if err != nil {
		return s.respondError(ctx, common.InvalidRequest("failed to open uploaded file"))
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("cropHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()
	data, err := io.ReadAll(io.LimitReader(src, s.maxUploadBytes+1))
	if err != nil {
		return s.respondError(ctx, common.InvalidRequest("failed to read uploaded file"))
	}
	if int64(len(data)) > s.maxUploadBytes {
		return s.respondError(ctx, common.InvalidRequest("uploaded image exceeds %d bytes", s.maxUploadBytes))
	}

	metadata, err := cropMetadataOf(ctx)
	if err != nil {
		return s.respondError(ctx, err)
	}

	result, err := s.continuity().CropSection(ctx.Request().Context(), continuity.CropRequest{
		SectionID:   rawID,
		Data:        data,
		ContentType: file.Header.Get(echo.HeaderContentType),
		Metadata:    metadata,
		UserID:      userID,
	})
	if err != nil {
		return s.respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

func cropMetadataOf(ctx echo.Context) (continuity.CropMetadata, error) {
	var metadata continuity.CropMetadata
	if raw := ctx.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return metadata, common.InvalidRequest("malformed crop metadata: %v", err)
		}
		return metadata, nil
	}

	for field, target := range map[string]*int{"startY": &metadata.StartY, "endY": &metadata.EndY} {
		raw := ctx.FormValue(field)
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return metadata, common.InvalidRequest("%s must be an integer", field)
		}
		*target = value
	}
	metadata.Action = continuity.CropAction(ctx.FormValue("action"))
	if metadata.Action == "" {
		metadata.Action = continuity.CropActionCrop
	}
	return metadata, nil
}

func (s *APIService) historyHandler(ctx echo.Context) error {
	rawID := ctx.Param("id")
	if err := s.continuity().AuthorizeSection(ctx.Request().Context(), userOf(ctx), rawID); err != nil {
		return s.respondError(ctx, err)
	}

	result, err := s.continuity().GetHistory(ctx.Request().Context(), rawID)
	if err != nil {
		return s.respondError(ctx, err)
	}
	ctx.Response().Header().Set("Cache-Control", "no-store")
	return ctx.JSON(http.StatusOK, result)
}

func (s *APIService) logHistoryHandler(ctx echo.Context) error {
	rawID := ctx.Param("id")
	if err := s.continuity().AuthorizeSection(ctx.Request().Context(), userOf(ctx), rawID); err != nil {
		return s.respondError(ctx, err)
	}
	var req continuity.LogRequest
	if err := s.bind(ctx, &req); err != nil {
		return s.respondError(ctx, err)
	}
	req.SectionID = rawID
	req.UserID = userOf(ctx)

	result, err := s.continuity().LogHistory(ctx.Request().Context(), req)
	if err != nil {
		return s.respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

func (s *APIService) revertHandler(ctx echo.Context) error {
	sectionID, err := s.authorizedSectionID(ctx)
	if err != nil {
		return s.respondError(ctx, err)
	}
	var req continuity.RevertRequest
	if err := s.bind(ctx, &req); err != nil {
		return s.respondError(ctx, err)
	}
	req.SectionID = sectionID
	req.UserID = userOf(ctx)

	result, err := s.continuity().RevertSection(ctx.Request().Context(), req)
	if err != nil {
		return s.respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

// authorizedSectionID parses the :id path parameter, which must name a saved
// section owned by the caller.
func (s *APIService) authorizedSectionID(ctx echo.Context) (int64, error) {
	rawID := ctx.Param("id")
	userID := userOf(ctx)
	if userID == "" {
		return 0, common.Unauthorized("missing user identity")
	}
	sectionID, ok := continuity.ParseSectionID(rawID)
	if !ok {
		return 0, common.InvalidRequest("section %q has not been saved yet", rawID)
	}
	if err := s.continuity().AuthorizeSection(ctx.Request().Context(), userID, rawID); err != nil {
		return 0, err
	}
	return sectionID, nil
}

func (s *APIService) bind(ctx echo.Context, req any) error {
	if err := ctx.Bind(req); err != nil {
		return common.InvalidRequest("malformed request body")
	}
	return ctx.Validate(req)
}

func userOf(ctx echo.Context) string {
	return ctx.Request().Header.Get(UserHeader)
}

func statusOf(kind common.Kind) int {
	switch kind {
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindInvalidRequest:
		return http.StatusBadRequest
	case common.KindUploadFailed:
		return http.StatusBadGateway
	case common.KindRasterError:
		return http.StatusUnprocessableEntity
	case common.KindModelUnavailable:
		return http.StatusServiceUnavailable
	case common.KindUnauthorized:
		return http.StatusUnauthorized
	case common.KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func (s *APIService) respondError(ctx echo.Context, err error) error {
	kind := common.KindOf(err)
	status := statusOf(kind)
	response := errorResponse{
		Error:     string(kind),
		Message:   err.Error(),
		Retryable: common.IsRetryable(err),
	}

	var classified *common.Error
	if errors.As(err, &classified) && classified.Message != "" {
		response.Message = classified.Message
	}
	if kind == "" {
		response.Error = "Internal"
		response.Message = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "route", ctx.Path(), "status", status, "error", err)
	} else {
		slog.Warn("request rejected", "route", ctx.Path(), "status", status, "error", err)
	}
	return ctx.JSON(status, response)
}
