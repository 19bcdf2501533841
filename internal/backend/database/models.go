package database

import "time"

// SourceType tags how an image asset came into existence.
type SourceType string

const (
	SourceGenerated      SourceType = "generated"
	SourceCropped        SourceType = "cropped"
	SourceBoundaryAdjust SourceType = "boundary-adjust"
	SourceRestored       SourceType = "restored"
	SourcePDFImport      SourceType = "pdf-import"
	SourceUpload         SourceType = "upload"
	SourceImport         SourceType = "import"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceGenerated, SourceCropped, SourceBoundaryAdjust, SourceRestored,
		SourcePDFImport, SourceUpload, SourceImport:
		return true
	}
	return false
}

// ActionType tags the kind of substitution recorded in the ledger.
type ActionType string

const (
	ActionCrop           ActionType = "crop"
	ActionRestore        ActionType = "restore"
	ActionRevert         ActionType = "revert"
	ActionManual         ActionType = "manual"
	ActionBoundaryAdjust ActionType = "boundary-adjust"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionCrop, ActionRestore, ActionRevert, ActionManual, ActionBoundaryAdjust:
		return true
	}
	return false
}

type Page struct {
	ID        int64     `db:"id"`
	OwnerID   string    `db:"owner_id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
}

// Section is one block of a page's vertical stack. ImageID is the only
// mutable pointer; prior images live in the history ledger.
type Section struct {
	ID      int64  `db:"id"`
	PageID  int64  `db:"page_id"`
	Order   int    `db:"order_index"`
	Role    string `db:"role"`
	ImageID *int64 `db:"image_id"`
}

// Image is immutable once inserted.
type Image struct {
	ID            int64      `db:"id"`
	Path          string     `db:"path"`
	Width         int        `db:"width"`
	Height        int        `db:"height"`
	MimeType      string     `db:"mime_type"`
	SourceType    SourceType `db:"source_type"`
	ImportBatchID string     `db:"import_batch_id"` // empty unless created by a bulk import
	SegmentIndex  *int       `db:"segment_index"`
	CreatedAt     time.Time  `db:"created_at"`
}

type HistoryEntry struct {
	ID              int64      `db:"id"`
	SectionID       int64      `db:"section_id"`
	UserID          string     `db:"user_id"`
	PreviousImageID *int64     `db:"previous_image_id"`
	NewImageID      int64      `db:"new_image_id"`
	ActionType      ActionType `db:"action_type"`
	Prompt          string     `db:"prompt"`
	CreatedAt       time.Time  `db:"created_at"`
}

// Substitution repoints a section at an image. Exactly one of NewImage (a
// row to insert) or NewImageID (an existing row) is set.
type Substitution struct {
	SectionID  int64
	NewImage   *Image
	NewImageID int64
	UserID     string
	ActionType ActionType
	Prompt     string
}

type SubstitutionResult struct {
	SectionID       int64
	PreviousImageID *int64
	Image           *Image
	HistoryEntry    *HistoryEntry
}

// ImportSegment is one section of a bulk-imported page.
type ImportSegment struct {
	Image *Image
	Role  string
}
