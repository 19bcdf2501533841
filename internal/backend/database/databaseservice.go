package database

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned (wrapped) when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

type DatabaseService interface {
	CreateDatabase() (*sql.DB, error)
	DoesDatabaseExist() bool
	Close() error

	CreatePage(ctx context.Context, ownerID, title string) (*Page, error)
	GetPage(ctx context.Context, id int64) (*Page, error)

	CreateSection(ctx context.Context, pageID int64, order int, role string, imageID *int64) (*Section, error)
	GetSection(ctx context.Context, id int64) (*Section, error)
	GetSectionsByPage(ctx context.Context, pageID int64) ([]*Section, error)

	CreateImage(ctx context.Context, image *Image) (*Image, error)
	GetImageByID(ctx context.Context, id int64) (*Image, error)
	GetImagesByIDs(ctx context.Context, ids []int64) (map[int64]*Image, error)
	FindImagesByImportSegment(ctx context.Context, batchIDs []string, segmentIndex int) ([]*Image, error)
	FindImagesByPathFragment(ctx context.Context, fragment string) ([]*Image, error)

	// Substitute applies all substitutions in one transaction. For each one the
	// section's current image is captured, a history entry is appended and only
	// then is the section repointed.
	Substitute(ctx context.Context, subs ...Substitution) ([]SubstitutionResult, error)
	AppendHistory(ctx context.Context, entry *HistoryEntry) (*HistoryEntry, error)
	GetHistoryBySection(ctx context.Context, sectionID int64, limit int) ([]*HistoryEntry, error)
	GetHistoryByImage(ctx context.Context, imageID int64, limit int) ([]*HistoryEntry, error)
	GetAllHistory(ctx context.Context) ([]*HistoryEntry, error)

	// ImportPage creates a page with one section per segment, in order, in a
	// single transaction.
	ImportPage(ctx context.Context, ownerID, title string, segments []ImportSegment) (*Page, []*Section, error)
}
