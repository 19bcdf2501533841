package continuity

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/jo-hoe/goseam/internal/backend/database"
	"github.com/jo-hoe/goseam/internal/common"
)

const historyLimit = 10

// importTokenPattern finds 13 digit millisecond timestamps, the batch token
// bulk imports put into asset names.
var importTokenPattern = regexp.MustCompile(`(?:^|\D)(\d{13})(?:\D|$)`)

type ImageSummary struct {
	ID         int64     `json:"id"`
	Path       string    `json:"path"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	SourceType string    `json:"sourceType"`
	CreatedAt  time.Time `json:"createdAt"`
}

type HistoryItem struct {
	ID              int64         `json:"id"`
	SectionID       int64         `json:"sectionId"`
	UserID          string        `json:"userId"`
	PreviousImageID *int64        `json:"previousImageId"`
	NewImageID      int64         `json:"newImageId"`
	ActionType      string        `json:"actionType"`
	Prompt          string        `json:"prompt,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	PreviousImage   *ImageSummary `json:"previousImage,omitempty"`
	NewImage        *ImageSummary `json:"newImage,omitempty"`
}

type HistoryResult struct {
	History        []HistoryItem  `json:"history"`
	OriginalImages []ImageSummary `json:"originalImages"`
	SectionOrder   *int           `json:"sectionOrder"`
}

func summaryOf(img *database.Image) *ImageSummary {
	if img == nil {
		return nil
	}
	return &ImageSummary{
		ID:         img.ID,
		Path:       img.Path,
		Width:      img.Width,
		Height:     img.Height,
		SourceType: string(img.SourceType),
		CreatedAt:  img.CreatedAt,
	}
}

// GetHistory returns the most recent substitutions that concern a section,
// either logged against it or touching its current image, plus the
// bulk-import originals for its position on the page.
func (s *Service) GetHistory(ctx context.Context, rawSectionID string) (*HistoryResult, error) {
	result := &HistoryResult{History: []HistoryItem{}, OriginalImages: []ImageSummary{}}

	sectionID, ok := ParseSectionID(rawSectionID)
	if !ok {
		return result, nil
	}
	section, err := s.loadSection(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	order := section.Order
	result.SectionOrder = &order

	entries, err := s.collectHistory(ctx, section)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(entries)*2)
	for _, e := range entries {
		ids = append(ids, e.NewImageID)
		if e.PreviousImageID != nil {
			ids = append(ids, *e.PreviousImageID)
		}
	}
	images, err := s.db.GetImagesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load history images: %w", err)
	}

	for _, e := range entries {
		item := HistoryItem{
			ID:              e.ID,
			SectionID:       e.SectionID,
			UserID:          e.UserID,
			PreviousImageID: e.PreviousImageID,
			NewImageID:      e.NewImageID,
			ActionType:      string(e.ActionType),
			Prompt:          e.Prompt,
			CreatedAt:       e.CreatedAt,
			NewImage:        summaryOf(images[e.NewImageID]),
		}
		if e.PreviousImageID != nil {
			item.PreviousImage = summaryOf(images[*e.PreviousImageID])
		}
		result.History = append(result.History, item)
	}

	originals, err := s.originalImages(ctx, section)
	if err != nil {
		return nil, err
	}
	for _, img := range originals {
		result.OriginalImages = append(result.OriginalImages, *summaryOf(img))
	}

	return result, nil
}

// collectHistory merges entries logged against the section with entries
// that reference its current image, newest first, capped at historyLimit.
func (s *Service) collectHistory(ctx context.Context, section *database.Section) ([]*database.HistoryEntry, error) {
	bySection, err := s.db.GetHistoryBySection(ctx, section.ID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for section %d: %w", section.ID, err)
	}

	merged := make(map[int64]*database.HistoryEntry, len(bySection))
	for _, e := range bySection {
		merged[e.ID] = e
	}
	if section.ImageID != nil {
		byImage, err := s.db.GetHistoryByImage(ctx, *section.ImageID, historyLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load history for image %d: %w", *section.ImageID, err)
		}
		for _, e := range byImage {
			merged[e.ID] = e
		}
	}

	entries := make([]*database.HistoryEntry, 0, len(merged))
	for _, e := range merged {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
	if len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}
	return entries, nil
}

// originalImages finds bulk-import assets for the section's position. Import
// batches are discovered from the current images of all sections on the
// page; images stored before batches were recorded are matched by the
// "{timestamp}-seg-{index}" naming convention instead, and only against other
// images without a batch.
func (s *Service) originalImages(ctx context.Context, section *database.Section) ([]*database.Image, error) {
	siblings, err := s.db.GetSectionsByPage(ctx, section.PageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sections of page %d: %w", section.PageID, err)
	}
	var currentIDs []int64
	for _, sibling := range siblings {
		if sibling.ImageID != nil {
			currentIDs = append(currentIDs, *sibling.ImageID)
		}
	}
	current, err := s.db.GetImagesByIDs(ctx, currentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load current images: %w", err)
	}

	batches := map[string]bool{}
	tokens := map[string]bool{}
	for _, img := range current {
		if img.ImportBatchID != "" {
			batches[img.ImportBatchID] = true
			continue
		}
		for _, match := range importTokenPattern.FindAllStringSubmatch(img.Path, -1) {
			tokens[match[1]] = true
		}
	}

	found := map[int64]*database.Image{}
	if len(batches) > 0 {
		images, err := s.db.FindImagesByImportSegment(ctx, sortedKeys(batches), section.Order)
		if err != nil {
			return nil, fmt.Errorf("failed to look up import batches: %w", err)
		}
		for _, img := range images {
			found[img.ID] = img
		}
	}
	for _, token := range sortedKeys(tokens) {
		fragment := token + "-seg-" + strconv.Itoa(section.Order)
		images, err := s.db.FindImagesByPathFragment(ctx, fragment)
		if err != nil {
			return nil, fmt.Errorf("failed to look up legacy import %s: %w", token, err)
		}
		exact := regexp.MustCompile(regexp.QuoteMeta(fragment) + `(?:\D|$)`)
		for _, img := range images {
			if img.ImportBatchID == "" && exact.MatchString(img.Path) {
				found[img.ID] = img
			}
		}
	}

	if section.ImageID != nil {
		delete(found, *section.ImageID)
	}

	originals := make([]*database.Image, 0, len(found))
	for _, img := range found {
		originals = append(originals, img)
	}
	sort.Slice(originals, func(i, j int) bool { return originals[i].ID < originals[j].ID })

	if len(tokens) > 0 {
		slog.Debug("legacy import tokens scanned", "section_id", section.ID, "tokens", len(tokens), "matches", len(originals))
	}
	return originals, nil
}

type RevertRequest struct {
	SectionID     int64  `json:"-"`
	TargetImageID int64  `json:"targetImageId" validate:"required"`
	UserID        string `json:"-"`
}

type RevertResult struct {
	SectionID       int64  `json:"sectionId"`
	PreviousImageID *int64 `json:"previousImageId"`
	NewImageID      int64  `json:"newImageId"`
	NewImageURL     string `json:"newImageUrl"`
}

// RevertSection points a section back at any existing image. The revert is
// itself logged as a new entry, so earlier entries stay untouched.
func (s *Service) RevertSection(ctx context.Context, req RevertRequest) (*RevertResult, error) {
	if req.TargetImageID <= 0 {
		return nil, common.InvalidRequest("targetImageId must be positive")
	}
	results, err := s.db.Substitute(ctx, database.Substitution{
		SectionID:  req.SectionID,
		NewImageID: req.TargetImageID,
		UserID:     req.UserID,
		ActionType: database.ActionRevert,
	})
	if err != nil {
		return nil, substitutionError(err)
	}
	r := results[0]

	slog.Info("section reverted", "section_id", req.SectionID, "image_id", r.Image.ID)
	return &RevertResult{
		SectionID:       r.SectionID,
		PreviousImageID: r.PreviousImageID,
		NewImageID:      r.Image.ID,
		NewImageURL:     r.Image.Path,
	}, nil
}

type LogRequest struct {
	SectionID       string `json:"-"`
	PreviousImageID *int64 `json:"previousImageId"`
	NewImageID      int64  `json:"newImageId" validate:"required"`
	ActionType      string `json:"actionType"`
	Prompt          string `json:"prompt,omitempty"`
	UserID          string `json:"-"`
}

type LogResult struct {
	Success bool  `json:"success"`
	EntryID int64 `json:"entryId"`
}

// LogHistory records a substitution that was applied outside this service.
// The section pointer is not moved.
func (s *Service) LogHistory(ctx context.Context, req LogRequest) (*LogResult, error) {
	sectionID, ok := ParseSectionID(req.SectionID)
	if !ok {
		return nil, common.InvalidRequest("history can only be logged for saved sections, got %q", req.SectionID)
	}
	action := database.ActionType(req.ActionType)
	if action == "" {
		action = database.ActionManual
	}
	if !action.Valid() {
		return nil, common.InvalidRequest("unknown action type %q", req.ActionType)
	}

	if _, err := s.loadSection(ctx, sectionID); err != nil {
		return nil, err
	}
	ids := []int64{req.NewImageID}
	if req.PreviousImageID != nil {
		ids = append(ids, *req.PreviousImageID)
	}
	for _, id := range ids {
		if _, err := s.db.GetImageByID(ctx, id); err != nil {
			return nil, storeError(err, "image %d", id)
		}
	}

	entry, err := s.db.AppendHistory(ctx, &database.HistoryEntry{
		SectionID:       sectionID,
		UserID:          req.UserID,
		PreviousImageID: req.PreviousImageID,
		NewImageID:      req.NewImageID,
		ActionType:      action,
		Prompt:          req.Prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to log history: %w", err)
	}
	return &LogResult{Success: true, EntryID: entry.ID}, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
