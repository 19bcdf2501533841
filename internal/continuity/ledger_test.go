package continuity

import (
	"context"
	"strconv"
	"testing"

	"github.com/jo-hoe/goseam/internal/backend/database"
	"github.com/jo-hoe/goseam/internal/common"
)

func sectionRef(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestLedger_ChainIntegrityAcrossOperations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	page := env.newPage(t)
	section, first := env.newSection(t, page, 0, encodeSolid(300, 400, red))
	other := env.storeImage(t, encodeSolid(300, 300, blue), database.SourceUpload)

	if _, err := env.service.CropSection(ctx, CropRequest{SectionID: sectionRef(section.ID), Data: encodeSolid(300, 350, red), ContentType: "image/png"}); err != nil {
		t.Fatalf("CropSection error: %v", err)
	}
	if _, err := env.service.ExtendSection(ctx, ExtendRequest{SectionID: section.ID, Direction: DirectionBottom, BottomAmount: 50, Prompt: "continue"}); err != nil {
		t.Fatalf("ExtendSection error: %v", err)
	}
	if _, err := env.service.RevertSection(ctx, RevertRequest{SectionID: section.ID, TargetImageID: other.ID}); err != nil {
		t.Fatalf("RevertSection error: %v", err)
	}
	if _, err := env.service.RevertSection(ctx, RevertRequest{SectionID: section.ID, TargetImageID: first.ID}); err != nil {
		t.Fatalf("RevertSection error: %v", err)
	}

	result, err := env.service.GetHistory(ctx, sectionRef(section.ID))
	if err != nil {
		t.Fatalf("GetHistory error: %v", err)
	}
	// the current image (first) is referenced by the oldest entry as well, so
	// every entry is returned exactly once
	if len(result.History) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(result.History))
	}

	wantActions := []string{"revert", "revert", "restore", "crop"}
	for i, item := range result.History {
		if item.ActionType != wantActions[i] {
			t.Errorf("entry %d: expected %s, got %s", i, wantActions[i], item.ActionType)
		}
		if item.NewImage == nil || item.NewImage.ID != item.NewImageID {
			t.Errorf("entry %d: new image summary missing", i)
		}
	}
	for i := len(result.History) - 1; i > 0; i-- {
		older, newer := result.History[i], result.History[i-1]
		if newer.PreviousImageID == nil || *newer.PreviousImageID != older.NewImageID {
			t.Errorf("chain broken between entries %d and %d", older.ID, newer.ID)
		}
	}
	if *result.History[3].PreviousImageID != first.ID {
		t.Error("oldest entry should start from the initial image")
	}
	if result.SectionOrder == nil || *result.SectionOrder != 0 {
		t.Errorf("expected section order 0, got %v", result.SectionOrder)
	}
}

func TestRevertSection_IsReachableFromHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	page := env.newPage(t)
	section, original := env.newSection(t, page, 0, encodeSolid(10, 10, red))
	unrelated := env.storeImage(t, encodeSolid(20, 20, blue), database.SourceGenerated)

	result, err := env.service.RevertSection(ctx, RevertRequest{SectionID: section.ID, TargetImageID: unrelated.ID, UserID: testOwner})
	if err != nil {
		t.Fatalf("RevertSection error: %v", err)
	}
	if result.PreviousImageID == nil || *result.PreviousImageID != original.ID {
		t.Errorf("expected previous image %d, got %v", original.ID, result.PreviousImageID)
	}
	if result.NewImageID != unrelated.ID || result.NewImageURL != unrelated.Path {
		t.Errorf("unexpected revert result %+v", result)
	}

	history, err := env.service.GetHistory(ctx, sectionRef(section.ID))
	if err != nil {
		t.Fatalf("GetHistory error: %v", err)
	}
	found := false
	for _, item := range history.History {
		if item.NewImageID == unrelated.ID && item.ActionType == "revert" {
			found = true
		}
	}
	if !found {
		t.Error("history should list the revert entry")
	}
}

func TestRevertSection_Errors(t *testing.T) {
	env := newTestEnv(t)
	page := env.newPage(t)
	section, original := env.newSection(t, page, 0, encodeSolid(10, 10, red))

	tests := []struct {
		name     string
		req      RevertRequest
		wantKind common.Kind
	}{
		{"missing image", RevertRequest{SectionID: section.ID, TargetImageID: 9999}, common.KindNotFound},
		{"missing section", RevertRequest{SectionID: 9999, TargetImageID: original.ID}, common.KindNotFound},
		{"invalid image id", RevertRequest{SectionID: section.ID}, common.KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.RevertSection(context.Background(), tt.req)
			if common.KindOf(err) != tt.wantKind {
				t.Fatalf("expected %s, got %v", tt.wantKind, err)
			}
		})
	}

	if env.currentImage(t, section.ID).ID != original.ID {
		t.Error("failed reverts must not move the section pointer")
	}
}

func TestGetHistory_UnsavedSection(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.service.GetHistory(context.Background(), "temp-7")
	if err != nil {
		t.Fatalf("GetHistory error: %v", err)
	}
	if len(result.History) != 0 || len(result.OriginalImages) != 0 || result.SectionOrder != nil {
		t.Errorf("expected empty result, got %+v", result)
	}

	_, err = env.service.GetHistory(context.Background(), "4242")
	if common.KindOf(err) != common.KindNotFound {
		t.Errorf("expected NotFound for missing section, got %v", err)
	}
}

func TestGetHistory_IncludesEntriesLoggedAgainstCurrentImage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	page := env.newPage(t)
	section, _ := env.newSection(t, page, 0, encodeSolid(10, 10, red))
	draft, _ := env.newSection(t, page, 1, encodeSolid(10, 10, blue))

	// an edit that was recorded against another section reference before the
	// image ended up on this section
	adopted := env.storeImage(t, encodeSolid(10, 10, green), database.SourceGenerated)
	if _, err := env.service.LogHistory(ctx, LogRequest{SectionID: sectionRef(draft.ID), NewImageID: adopted.ID, Prompt: "greener"}); err != nil {
		t.Fatalf("LogHistory error: %v", err)
	}
	if _, err := env.service.RevertSection(ctx, RevertRequest{SectionID: section.ID, TargetImageID: adopted.ID}); err != nil {
		t.Fatalf("RevertSection error: %v", err)
	}

	result, err := env.service.GetHistory(ctx, sectionRef(section.ID))
	if err != nil {
		t.Fatalf("GetHistory error: %v", err)
	}
	if len(result.History) != 2 {
		t.Fatalf("expected own revert plus adopted entry, got %d", len(result.History))
	}
	if result.History[1].SectionID != draft.ID || result.History[1].Prompt != "greener" || result.History[1].ActionType != "manual" {
		t.Errorf("unexpected adopted entry %+v", result.History[1])
	}
	if result.History[1].PreviousImage != nil {
		t.Error("manual entry without previous image should have no previous summary")
	}
}

func TestGetHistory_LimitsToTenNewest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	page := env.newPage(t)
	section, first := env.newSection(t, page, 0, encodeSolid(10, 10, red))
	second := env.storeImage(t, encodeSolid(10, 10, blue), database.SourceUpload)

	var lastEntry int64
	for i := 0; i < 12; i++ {
		target := first.ID
		if i%2 == 0 {
			target = second.ID
		}
		if _, err := env.service.RevertSection(ctx, RevertRequest{SectionID: section.ID, TargetImageID: target}); err != nil {
			t.Fatalf("RevertSection error: %v", err)
		}
	}
	all, _ := env.db.GetAllHistory(ctx)
	lastEntry = all[len(all)-1].ID

	result, err := env.service.GetHistory(ctx, sectionRef(section.ID))
	if err != nil {
		t.Fatalf("GetHistory error: %v", err)
	}
	if len(result.History) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(result.History))
	}
	if result.History[0].ID != lastEntry {
		t.Errorf("expected newest entry %d first, got %d", lastEntry, result.History[0].ID)
	}
	seen := map[int64]bool{}
	for _, item := range result.History {
		if seen[item.ID] {
			t.Errorf("entry %d listed twice", item.ID)
		}
		seen[item.ID] = true
	}
}

func TestGetHistory_OriginalImagesFromImportBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	imported, err := env.service.ImportPage(ctx, ImportRequest{
		OwnerID: testOwner,
		Segments: []ImportSegment{
			{Data: encodeSolid(20, 30, red)},
			{Data: encodeSolid(20, 40, blue)},
			{Data: encodeSolid(20, 50, green)},
		},
	})
	if err != nil {
		t.Fatalf("ImportPage error: %v", err)
	}
	section := imported.Sections[1]
	originalID := *section.ImageID

	// untouched section: its current image is the original, nothing to offer
	result, err := env.service.GetHistory(ctx, sectionRef(section.ID))
	if err != nil {
		t.Fatalf("GetHistory error: %v", err)
	}
	if len(result.OriginalImages) != 0 {
		t.Errorf("current image must not be offered as original, got %+v", result.OriginalImages)
	}

	if _, err := env.service.CropSection(ctx, CropRequest{SectionID: sectionRef(section.ID), Data: encodeSolid(20, 20, blue), ContentType: "image/png"}); err != nil {
		t.Fatalf("CropSection error: %v", err)
	}

	result, err = env.service.GetHistory(ctx, sectionRef(section.ID))
	if err != nil {
		t.Fatalf("GetHistory error: %v", err)
	}
	if len(result.OriginalImages) != 1 || result.OriginalImages[0].ID != originalID {
		t.Fatalf("expected original image %d, got %+v", originalID, result.OriginalImages)
	}
	if result.OriginalImages[0].Height != 40 {
		t.Errorf("expected the segment 1 original, got height %d", result.OriginalImages[0].Height)
	}
}

func TestGetHistory_OriginalImagesFromLegacyNames(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	page := env.newPage(t)

	legacy := func(path string) *database.Image {
		img, err := env.db.CreateImage(ctx, &database.Image{Path: path, Width: 10, Height: 10, MimeType: "image/png", SourceType: database.SourcePDFImport})
		if err != nil {
			t.Fatalf("CreateImage error: %v", err)
		}
		return img
	}
	seg0 := legacy("http://localhost:8080/blobs/pdf/1699999999999-seg-0.png")
	seg1 := legacy("http://localhost:8080/blobs/pdf/1699999999999-seg-1.png")
	legacy("http://localhost:8080/blobs/pdf/1699999999999-seg-10.png")

	if _, err := env.db.CreateSection(ctx, page.ID, 0, "", &seg0.ID); err != nil {
		t.Fatalf("CreateSection error: %v", err)
	}
	edited := env.storeImage(t, encodeSolid(10, 10, red), database.SourceCropped)
	section, err := env.db.CreateSection(ctx, page.ID, 1, "", &edited.ID)
	if err != nil {
		t.Fatalf("CreateSection error: %v", err)
	}

	result, err := env.service.GetHistory(ctx, sectionRef(section.ID))
	if err != nil {
		t.Fatalf("GetHistory error: %v", err)
	}
	if len(result.OriginalImages) != 1 || result.OriginalImages[0].ID != seg1.ID {
		t.Errorf("expected only seg-1 original, got %+v", result.OriginalImages)
	}
}

func TestLogHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	page := env.newPage(t)
	section, current := env.newSection(t, page, 0, encodeSolid(10, 10, red))
	edited := env.storeImage(t, encodeSolid(10, 10, blue), database.SourceGenerated)

	result, err := env.service.LogHistory(ctx, LogRequest{
		SectionID:       sectionRef(section.ID),
		PreviousImageID: &current.ID,
		NewImageID:      edited.ID,
		ActionType:      "restore",
		Prompt:          "remove the logo",
		UserID:          testOwner,
	})
	if err != nil {
		t.Fatalf("LogHistory error: %v", err)
	}
	if !result.Success || result.EntryID == 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if env.currentImage(t, section.ID).ID != current.ID {
		t.Error("LogHistory must not move the section pointer")
	}

	tests := []struct {
		name     string
		req      LogRequest
		wantKind common.Kind
	}{
		{"unsaved section", LogRequest{SectionID: "temp-1", NewImageID: edited.ID}, common.KindInvalidRequest},
		{"unknown action", LogRequest{SectionID: sectionRef(section.ID), NewImageID: edited.ID, ActionType: "paint"}, common.KindInvalidRequest},
		{"missing section", LogRequest{SectionID: "4242", NewImageID: edited.ID}, common.KindNotFound},
		{"missing new image", LogRequest{SectionID: sectionRef(section.ID), NewImageID: 4242}, common.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.LogHistory(ctx, tt.req)
			if common.KindOf(err) != tt.wantKind {
				t.Fatalf("expected %s, got %v", tt.wantKind, err)
			}
		})
	}
}
