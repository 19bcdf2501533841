package database

import (
	"context"
	"errors"
	"testing"
)

func newTestDB(t *testing.T) DatabaseService {
	t.Helper()

	ds, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteDatabase error: %v", err)
	}
	_, err = ds.CreateDatabase()
	if err != nil {
		t.Fatalf("CreateDatabase error: %v", err)
	}
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func newTestImage(path string) *Image {
	return &Image{Path: path, Width: 800, Height: 600, MimeType: "image/png", SourceType: SourceUpload}
}

func newSectionWithImage(t *testing.T, ds DatabaseService, path string) (*Section, *Image) {
	t.Helper()
	ctx := context.Background()

	page, err := ds.CreatePage(ctx, "user-1", "landing")
	if err != nil {
		t.Fatalf("CreatePage error: %v", err)
	}
	img, err := ds.CreateImage(ctx, newTestImage(path))
	if err != nil {
		t.Fatalf("CreateImage error: %v", err)
	}
	section, err := ds.CreateSection(ctx, page.ID, 0, "hero", &img.ID)
	if err != nil {
		t.Fatalf("CreateSection error: %v", err)
	}
	return section, img
}

func TestSQLite_DoesDatabaseExist(t *testing.T) {
	ds := newTestDB(t)
	if !ds.DoesDatabaseExist() {
		t.Fatalf("expected DoesDatabaseExist to return true")
	}
}

func TestSQLite_CreateDatabase_Idempotent(t *testing.T) {
	ds := newTestDB(t)
	if _, err := ds.CreateDatabase(); err != nil {
		t.Fatalf("second CreateDatabase error: %v", err)
	}
}

func TestSQLite_ImageRoundTrip(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()

	segment := 2
	in := newTestImage("http://localhost/blobs/imports/1700000000000-seg-2.png")
	in.ImportBatchID = "1700000000000"
	in.SegmentIndex = &segment
	in.SourceType = SourceImport

	created, err := ds.CreateImage(ctx, in)
	if err != nil {
		t.Fatalf("CreateImage error: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected non-zero id")
	}

	got, err := ds.GetImageByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetImageByID error: %v", err)
	}
	if got.Path != in.Path || got.Width != 800 || got.Height != 600 {
		t.Errorf("unexpected image %+v", got)
	}
	if got.SourceType != SourceImport {
		t.Errorf("expected source type %q, got %q", SourceImport, got.SourceType)
	}
	if got.ImportBatchID != "1700000000000" || got.SegmentIndex == nil || *got.SegmentIndex != 2 {
		t.Errorf("import provenance not preserved: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestSQLite_CreateImage_InvalidSourceType(t *testing.T) {
	ds := newTestDB(t)
	img := newTestImage("p")
	img.SourceType = "painted"
	if _, err := ds.CreateImage(context.Background(), img); err == nil {
		t.Fatal("expected error for invalid source type")
	}
}

func TestSQLite_NotFound(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"page", func() error { _, err := ds.GetPage(ctx, 42); return err }},
		{"section", func() error { _, err := ds.GetSection(ctx, 42); return err }},
		{"image", func() error { _, err := ds.GetImageByID(ctx, 42); return err }},
		{"substitute section", func() error {
			_, err := ds.Substitute(ctx, Substitution{SectionID: 42, NewImage: newTestImage("x"), UserID: "u", ActionType: ActionManual})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestSQLite_GetSectionsByPage_Ordered(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()

	page, _ := ds.CreatePage(ctx, "user-1", "")
	for _, order := range []int{2, 0, 1} {
		if _, err := ds.CreateSection(ctx, page.ID, order, "", nil); err != nil {
			t.Fatalf("CreateSection error: %v", err)
		}
	}

	sections, err := ds.GetSectionsByPage(ctx, page.ID)
	if err != nil {
		t.Fatalf("GetSectionsByPage error: %v", err)
	}
	if len(sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(sections))
	}
	for i, s := range sections {
		if s.Order != i {
			t.Errorf("section %d has order %d", i, s.Order)
		}
		if s.ImageID != nil {
			t.Errorf("expected nil image id, got %d", *s.ImageID)
		}
	}
}

func TestSQLite_Substitute_ChainIntegrity(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()
	section, first := newSectionWithImage(t, ds, "first")

	for _, path := range []string{"second", "third", "fourth"} {
		if _, err := ds.Substitute(ctx, Substitution{
			SectionID:  section.ID,
			NewImage:   newTestImage(path),
			UserID:     "user-1",
			ActionType: ActionCrop,
		}); err != nil {
			t.Fatalf("Substitute(%s) error: %v", path, err)
		}
	}

	entries, err := ds.GetHistoryBySection(ctx, section.ID, 10)
	if err != nil {
		t.Fatalf("GetHistoryBySection error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	// newest first: entry k (older) feeds entry k-1 (newer)
	for i := len(entries) - 1; i > 0; i-- {
		older, newer := entries[i], entries[i-1]
		if newer.PreviousImageID == nil || *newer.PreviousImageID != older.NewImageID {
			t.Errorf("broken chain between entry %d and %d", older.ID, newer.ID)
		}
	}
	oldest := entries[len(entries)-1]
	if oldest.PreviousImageID == nil || *oldest.PreviousImageID != first.ID {
		t.Errorf("oldest entry should point back at the initial image")
	}

	current, _ := ds.GetSection(ctx, section.ID)
	if current.ImageID == nil || *current.ImageID != entries[0].NewImageID {
		t.Errorf("section should reference the newest image")
	}
}

func TestSQLite_Substitute_ExistingImage(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()
	section, first := newSectionWithImage(t, ds, "first")
	other, _ := ds.CreateImage(ctx, newTestImage("other"))

	results, err := ds.Substitute(ctx, Substitution{
		SectionID:  section.ID,
		NewImageID: other.ID,
		UserID:     "user-1",
		ActionType: ActionRevert,
	})
	if err != nil {
		t.Fatalf("Substitute error: %v", err)
	}
	r := results[0]
	if r.PreviousImageID == nil || *r.PreviousImageID != first.ID {
		t.Errorf("expected previous image %d", first.ID)
	}
	if r.Image.ID != other.ID || r.HistoryEntry.NewImageID != other.ID {
		t.Errorf("expected new image %d, got %+v", other.ID, r)
	}
	if r.HistoryEntry.ActionType != ActionRevert {
		t.Errorf("expected revert action, got %s", r.HistoryEntry.ActionType)
	}
}

func TestSQLite_Substitute_RollsBackAllOnFailure(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()
	section, first := newSectionWithImage(t, ds, "first")

	_, err := ds.Substitute(ctx,
		Substitution{SectionID: section.ID, NewImage: newTestImage("second"), UserID: "u", ActionType: ActionBoundaryAdjust},
		Substitution{SectionID: 9999, NewImage: newTestImage("ghost"), UserID: "u", ActionType: ActionBoundaryAdjust},
	)
	if err == nil {
		t.Fatal("expected error")
	}

	current, _ := ds.GetSection(ctx, section.ID)
	if *current.ImageID != first.ID {
		t.Errorf("section should still reference image %d, got %d", first.ID, *current.ImageID)
	}
	entries, _ := ds.GetHistoryBySection(ctx, section.ID, 10)
	if len(entries) != 0 {
		t.Errorf("expected no history after rollback, got %d", len(entries))
	}
	found, _ := ds.FindImagesByPathFragment(ctx, "second")
	if len(found) != 0 {
		t.Errorf("expected image insert to be rolled back")
	}
}

func TestSQLite_Substitute_InvalidAction(t *testing.T) {
	ds := newTestDB(t)
	section, _ := newSectionWithImage(t, ds, "first")
	_, err := ds.Substitute(context.Background(), Substitution{SectionID: section.ID, NewImage: newTestImage("x"), ActionType: "paint"})
	if err == nil {
		t.Fatal("expected error for invalid action type")
	}
}

func TestSQLite_HistoryLimitAndImageLookup(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()
	section, first := newSectionWithImage(t, ds, "first")

	for i := 0; i < 12; i++ {
		if _, err := ds.Substitute(ctx, Substitution{SectionID: section.ID, NewImage: newTestImage("n"), UserID: "u", ActionType: ActionManual}); err != nil {
			t.Fatalf("Substitute error: %v", err)
		}
	}

	limited, err := ds.GetHistoryBySection(ctx, section.ID, 10)
	if err != nil {
		t.Fatalf("GetHistoryBySection error: %v", err)
	}
	if len(limited) != 10 {
		t.Errorf("expected 10 entries, got %d", len(limited))
	}

	byImage, err := ds.GetHistoryByImage(ctx, first.ID, 10)
	if err != nil {
		t.Fatalf("GetHistoryByImage error: %v", err)
	}
	if len(byImage) != 1 {
		t.Errorf("expected 1 entry referencing the first image, got %d", len(byImage))
	}

	all, _ := ds.GetAllHistory(ctx)
	if len(all) != 12 {
		t.Errorf("expected 12 entries in total, got %d", len(all))
	}
}

func TestSQLite_AppendHistory_WithoutRepoint(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()
	section, first := newSectionWithImage(t, ds, "first")
	second, _ := ds.CreateImage(ctx, newTestImage("second"))

	entry, err := ds.AppendHistory(ctx, &HistoryEntry{
		SectionID:       section.ID,
		UserID:          "u",
		PreviousImageID: &first.ID,
		NewImageID:      second.ID,
		ActionType:      ActionManual,
		Prompt:          "brighter sky",
	})
	if err != nil {
		t.Fatalf("AppendHistory error: %v", err)
	}
	if entry.ID == 0 || entry.Prompt != "brighter sky" {
		t.Errorf("unexpected entry %+v", entry)
	}

	current, _ := ds.GetSection(ctx, section.ID)
	if *current.ImageID != first.ID {
		t.Error("AppendHistory must not move the section pointer")
	}
}

func TestSQLite_ImportPage(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()

	var segments []ImportSegment
	for i := 0; i < 3; i++ {
		idx := i
		img := newTestImage("imports/1700000000000-seg-" + string(rune('0'+i)) + ".png")
		img.SourceType = SourceImport
		img.ImportBatchID = "1700000000000"
		img.SegmentIndex = &idx
		segments = append(segments, ImportSegment{Image: img, Role: "body"})
	}

	page, sections, err := ds.ImportPage(ctx, "owner", "imported", segments)
	if err != nil {
		t.Fatalf("ImportPage error: %v", err)
	}
	if page.OwnerID != "owner" || len(sections) != 3 {
		t.Fatalf("unexpected import result %+v %d", page, len(sections))
	}

	found, err := ds.FindImagesByImportSegment(ctx, []string{"1700000000000", "other"}, 1)
	if err != nil {
		t.Fatalf("FindImagesByImportSegment error: %v", err)
	}
	if len(found) != 1 || *found[0].SegmentIndex != 1 {
		t.Fatalf("expected one image for segment 1, got %+v", found)
	}
	if *sections[1].ImageID != found[0].ID {
		t.Errorf("section 1 should reference segment 1 image")
	}
}

func TestSQLite_FindImagesByPathFragment_EscapesWildcards(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()
	_, _ = ds.CreateImage(ctx, newTestImage("a/1700000000000-seg-1.png"))
	_, _ = ds.CreateImage(ctx, newTestImage("a/1700000000000-seg-10.png"))
	_, _ = ds.CreateImage(ctx, newTestImage("a/100_percent.png"))
	_, _ = ds.CreateImage(ctx, newTestImage("a/100xpercent.png"))

	found, err := ds.FindImagesByPathFragment(ctx, "1700000000000-seg-1")
	if err != nil {
		t.Fatalf("FindImagesByPathFragment error: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("expected prefix match on both seg-1 and seg-10, got %d", len(found))
	}

	found, _ = ds.FindImagesByPathFragment(ctx, "100_percent")
	if len(found) != 1 {
		t.Errorf("expected underscore to be matched literally, got %d", len(found))
	}

	found, _ = ds.FindImagesByPathFragment(ctx, "")
	if len(found) != 0 {
		t.Errorf("expected no results for empty fragment")
	}
}

func TestNewDatabase_UnsupportedType(t *testing.T) {
	if _, err := NewDatabase("postgres", ""); err == nil {
		t.Fatal("expected error for unsupported database type")
	}
}
