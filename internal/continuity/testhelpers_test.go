package continuity

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jo-hoe/goseam/internal/backend/blobstore"
	"github.com/jo-hoe/goseam/internal/backend/database"
	"github.com/jo-hoe/goseam/internal/backend/outpainting"
)

var (
	red   = color.NRGBA{R: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
)

const testOwner = "owner-1"

// fakeModel answers every synthesis with a solid green image unless fail
// says otherwise. It is safe for concurrent use.
type fakeModel struct {
	mu    sync.Mutex
	calls []fakeCall
	fail  func(instruction string) bool
	empty bool
}

type fakeCall struct {
	images      []outpainting.ContextImage
	instruction string
}

func (m *fakeModel) Synthesize(_ context.Context, images []outpainting.ContextImage, instruction string) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, fakeCall{images: images, instruction: instruction})
	m.mu.Unlock()

	if m.fail != nil && m.fail(instruction) {
		return nil, errors.New("model overloaded")
	}
	if m.empty {
		return nil, nil
	}
	return encodeSolid(256, 256, green), nil
}

func (m *fakeModel) Close() error { return nil }

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *fakeModel) callWith(substr string) (fakeCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if strings.Contains(c.instruction, substr) {
			return c, true
		}
	}
	return fakeCall{}, false
}

type testEnv struct {
	service *Service
	db      database.DatabaseService
	images  *blobstore.ImageStore
	model   *fakeModel
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	return newTestEnvWithSettings(t, DefaultSettings(), opts...)
}

func newTestEnvWithSettings(t *testing.T, settings Settings, opts ...Option) *testEnv {
	t.Helper()

	db, err := database.NewDatabase("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	store, err := blobstore.NewRedisStore(context.Background(), &redis.Options{Addr: mr.Addr()}, "test:")
	if err != nil {
		t.Fatalf("NewRedisStore error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	images := blobstore.NewImageStore(store, "http://localhost:8080")
	model := &fakeModel{}
	service := NewService(db, images, outpainting.NewClient(model), settings, opts...)

	return &testEnv{service: service, db: db, images: images, model: model}
}

func encodeSolid(w, h int, c color.Color) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return encode(img)
}

// encodeRows returns a w x h image whose rows are red down to splitY and
// blue below, so cuts can be located by color.
func encodeRows(w, h, splitY int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		c := red
		if y >= splitY {
			c = blue
		}
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return encode(img)
}

func encode(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func (e *testEnv) newPage(t *testing.T) *database.Page {
	t.Helper()
	page, err := e.db.CreatePage(context.Background(), testOwner, "test page")
	if err != nil {
		t.Fatalf("CreatePage error: %v", err)
	}
	return page
}

func (e *testEnv) storeImage(t *testing.T, data []byte, source database.SourceType) *database.Image {
	t.Helper()
	ctx := context.Background()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeConfig error: %v", err)
	}
	path, err := e.images.Upload(ctx, "fixtures", data, "image/png")
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	img, err := e.db.CreateImage(ctx, &database.Image{
		Path: path, Width: cfg.Width, Height: cfg.Height, MimeType: "image/png", SourceType: source,
	})
	if err != nil {
		t.Fatalf("CreateImage error: %v", err)
	}
	return img
}

func (e *testEnv) newSection(t *testing.T, page *database.Page, order int, data []byte) (*database.Section, *database.Image) {
	t.Helper()
	img := e.storeImage(t, data, database.SourceUpload)
	section, err := e.db.CreateSection(context.Background(), page.ID, order, "", &img.ID)
	if err != nil {
		t.Fatalf("CreateSection error: %v", err)
	}
	return section, img
}

func (e *testEnv) currentImage(t *testing.T, sectionID int64) *database.Image {
	t.Helper()
	ctx := context.Background()
	section, err := e.db.GetSection(ctx, sectionID)
	if err != nil {
		t.Fatalf("GetSection error: %v", err)
	}
	if section.ImageID == nil {
		t.Fatalf("section %d has no image", sectionID)
	}
	img, err := e.db.GetImageByID(ctx, *section.ImageID)
	if err != nil {
		t.Fatalf("GetImageByID error: %v", err)
	}
	return img
}

func (e *testEnv) decodeImage(t *testing.T, img *database.Image) *image.NRGBA {
	t.Helper()
	data, err := e.images.Fetch(context.Background(), img.Path)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode error: %v", err)
	}
	out := image.NewNRGBA(decoded.Bounds())
	for y := decoded.Bounds().Min.Y; y < decoded.Bounds().Max.Y; y++ {
		for x := decoded.Bounds().Min.X; x < decoded.Bounds().Max.X; x++ {
			out.Set(x, y, decoded.At(x, y))
		}
	}
	return out
}

func decodeContext(t *testing.T, c outpainting.ContextImage) image.Config {
	t.Helper()
	cfg, err := png.DecodeConfig(bytes.NewReader(c.Data))
	if err != nil {
		t.Fatalf("DecodeConfig error: %v", err)
	}
	return cfg
}

// assertColor allows a small per-channel drift for resampled pixels.
func assertColor(t *testing.T, got color.NRGBA, want color.NRGBA, what string) {
	t.Helper()
	near := func(a, b uint8) bool {
		d := int(a) - int(b)
		return d >= -2 && d <= 2
	}
	if !near(got.R, want.R) || !near(got.G, want.G) || !near(got.B, want.B) || !near(got.A, want.A) {
		t.Errorf("%s: expected %v, got %v", what, want, got)
	}
}

func fixedClock(ts time.Time) Option {
	return WithClock(func() time.Time { return ts })
}
