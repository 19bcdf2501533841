package continuity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/goseam/internal/backend/database"
	"github.com/jo-hoe/goseam/internal/backend/imageprocessing"
	"github.com/jo-hoe/goseam/internal/common"
)

func TestImportPage(t *testing.T) {
	batchTime := time.UnixMilli(1700000000123)
	env := newTestEnv(t, fixedClock(batchTime))
	ctx := context.Background()

	result, err := env.service.ImportPage(ctx, ImportRequest{
		OwnerID: testOwner,
		Title:   "spring campaign",
		Segments: []ImportSegment{
			{Data: encodeSolid(40, 10, red), Role: "hero"},
			{Data: encodeSolid(40, 20, blue), Role: "body"},
		},
	})
	if err != nil {
		t.Fatalf("ImportPage error: %v", err)
	}
	if !strings.HasPrefix(result.BatchID, "1700000000123-") || len(result.BatchID) != len("1700000000123-")+8 {
		t.Errorf("expected batch id from clock plus suffix, got %s", result.BatchID)
	}
	if result.Page.OwnerID != testOwner || result.Page.Title != "spring campaign" {
		t.Errorf("unexpected page %+v", result.Page)
	}
	if len(result.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(result.Sections))
	}

	for i, section := range result.Sections {
		if section.Order != i {
			t.Errorf("section %d has order %d", i, section.Order)
		}
		img := env.currentImage(t, section.ID)
		if img.ImportBatchID != result.BatchID || img.SegmentIndex == nil || *img.SegmentIndex != i {
			t.Errorf("section %d image lacks import provenance: %+v", i, img)
		}
		if img.SourceType != database.SourceImport {
			t.Errorf("expected import source type, got %s", img.SourceType)
		}
		wantSuffix := "/blobs/imports/" + result.BatchID + "-seg-" + string(rune('0'+i)) + ".png"
		if !strings.HasSuffix(img.Path, wantSuffix) {
			t.Errorf("expected path ending in %s, got %s", wantSuffix, img.Path)
		}
	}
	if result.Sections[0].Role != "hero" {
		t.Errorf("expected role to be kept, got %q", result.Sections[0].Role)
	}
}

func TestImportPage_SameMillisecond(t *testing.T) {
	env := newTestEnv(t, fixedClock(time.UnixMilli(1700000000000)))
	ctx := context.Background()

	first, err := env.service.ImportPage(ctx, ImportRequest{
		OwnerID:  testOwner,
		Segments: []ImportSegment{{Data: encodeSolid(30, 10, red)}, {Data: encodeSolid(30, 10, red)}},
	})
	if err != nil {
		t.Fatalf("first ImportPage error: %v", err)
	}
	second, err := env.service.ImportPage(ctx, ImportRequest{
		OwnerID:  testOwner,
		Segments: []ImportSegment{{Data: encodeSolid(50, 20, blue)}, {Data: encodeSolid(50, 20, blue)}},
	})
	if err != nil {
		t.Fatalf("second ImportPage error: %v", err)
	}
	if first.BatchID == second.BatchID {
		t.Fatalf("imports in one millisecond share batch id %s", first.BatchID)
	}

	for i, section := range first.Sections {
		firstImg := env.currentImage(t, section.ID)
		secondImg := env.currentImage(t, second.Sections[i].ID)
		if firstImg.Path == secondImg.Path {
			t.Errorf("segment %d of both imports stored at %s", i, firstImg.Path)
		}
		decoded := env.decodeImage(t, firstImg)
		if decoded.Bounds().Dx() != 30 || decoded.Bounds().Dy() != 10 || decoded.NRGBAAt(0, 0) != red {
			t.Errorf("segment %d of the first import was overwritten", i)
		}
	}

	history, err := env.service.GetHistory(ctx, sectionRef(first.Sections[0].ID))
	if err != nil {
		t.Fatalf("GetHistory error: %v", err)
	}
	for _, original := range history.OriginalImages {
		t.Errorf("unexpected original from another import: %+v", original)
	}
}

func TestImportPage_AppliesPipeline(t *testing.T) {
	invoker, err := imageprocessing.NewCommandInvokerFromConfig(imageprocessing.DefaultRegistry, []imageprocessing.CommandConfig{
		{Name: "ResizeCommand", Params: map[string]any{"width": 20}},
	})
	if err != nil {
		t.Fatalf("NewCommandInvokerFromConfig error: %v", err)
	}
	env := newTestEnv(t, WithImportPipeline(invoker))

	result, err := env.service.ImportPage(context.Background(), ImportRequest{
		OwnerID:    testOwner,
		Segments:   []ImportSegment{{Data: encodeSolid(40, 60, red)}},
		SourceType: database.SourcePDFImport,
	})
	if err != nil {
		t.Fatalf("ImportPage error: %v", err)
	}
	img := env.currentImage(t, result.Sections[0].ID)
	if img.Width != 20 || img.Height != 30 {
		t.Errorf("expected pipeline to resize to 20x30, got %dx%d", img.Width, img.Height)
	}
	if img.SourceType != database.SourcePDFImport {
		t.Errorf("expected pdf-import source type, got %s", img.SourceType)
	}
}

func TestImportPage_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		req      ImportRequest
		wantKind common.Kind
	}{
		{"no owner", ImportRequest{Segments: []ImportSegment{{Data: encodeSolid(1, 1, red)}}}, common.KindInvalidRequest},
		{"no segments", ImportRequest{OwnerID: testOwner}, common.KindInvalidRequest},
		{"bad source", ImportRequest{OwnerID: testOwner, Segments: []ImportSegment{{Data: encodeSolid(1, 1, red)}}, SourceType: "scan"}, common.KindInvalidRequest},
		{"bad segment", ImportRequest{OwnerID: testOwner, Segments: []ImportSegment{{Data: []byte("nope")}}}, common.KindRasterError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.ImportPage(context.Background(), tt.req)
			if common.KindOf(err) != tt.wantKind {
				t.Fatalf("expected %s, got %v", tt.wantKind, err)
			}
		})
	}
}
