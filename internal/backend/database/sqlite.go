package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		mime_type TEXT NOT NULL,
		source_type TEXT NOT NULL,
		import_batch_id TEXT,
		segment_index INTEGER,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_images_import ON images (import_batch_id, segment_index)`,
	`CREATE TABLE IF NOT EXISTS sections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		page_id INTEGER NOT NULL REFERENCES pages (id),
		order_index INTEGER NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		image_id INTEGER REFERENCES images (id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sections_page ON sections (page_id, order_index)`,
	`CREATE TABLE IF NOT EXISTS history_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		section_id INTEGER NOT NULL REFERENCES sections (id),
		user_id TEXT NOT NULL,
		previous_image_id INTEGER REFERENCES images (id),
		new_image_id INTEGER NOT NULL REFERENCES images (id),
		action_type TEXT NOT NULL,
		prompt TEXT,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_section ON history_entries (section_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_history_previous ON history_entries (previous_image_id)`,
	`CREATE INDEX IF NOT EXISTS idx_history_new ON history_entries (new_image_id)`,
}

const (
	imageColumns   = "id, path, width, height, mime_type, source_type, import_batch_id, segment_index, created_at"
	sectionColumns = "id, page_id, order_index, role, image_id"
	historyColumns = "id, section_id, user_id, previous_image_id, new_image_id, action_type, prompt, created_at"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
	now              func() time.Time
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers the way SQLite wants anyway.
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
		now:              time.Now,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase() (*sql.DB, error) {
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return s.db, nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist() bool {
	// In SQLite, the database file is created when you connect to it.
	// So we can assume it exists if we can successfully ping the database.
	err := s.db.Ping()
	return err == nil
}

func (s *SQLiteDatabase) timestamp() int64 {
	return s.now().UTC().UnixNano()
}

// Pages

func (s *SQLiteDatabase) CreatePage(ctx context.Context, ownerID, title string) (*Page, error) {
	return s.createPage(ctx, s.db, ownerID, title)
}

func (s *SQLiteDatabase) createPage(ctx context.Context, q querier, ownerID, title string) (*Page, error) {
	created := s.timestamp()
	res, err := q.ExecContext(ctx, "INSERT INTO pages (owner_id, title, created_at) VALUES (?, ?, ?)", ownerID, title, created)
	if err != nil {
		return nil, fmt.Errorf("failed to insert page: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Page{ID: id, OwnerID: ownerID, Title: title, CreatedAt: time.Unix(0, created).UTC()}, nil
}

func (s *SQLiteDatabase) GetPage(ctx context.Context, id int64) (*Page, error) {
	var page Page
	var created int64
	err := s.db.QueryRowContext(ctx, "SELECT id, owner_id, title, created_at FROM pages WHERE id = ?", id).
		Scan(&page.ID, &page.OwnerID, &page.Title, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("page %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	page.CreatedAt = time.Unix(0, created).UTC()
	return &page, nil
}

// Sections

func (s *SQLiteDatabase) CreateSection(ctx context.Context, pageID int64, order int, role string, imageID *int64) (*Section, error) {
	return s.createSection(ctx, s.db, pageID, order, role, imageID)
}

func (s *SQLiteDatabase) createSection(ctx context.Context, q querier, pageID int64, order int, role string, imageID *int64) (*Section, error) {
	res, err := q.ExecContext(ctx, "INSERT INTO sections (page_id, order_index, role, image_id) VALUES (?, ?, ?, ?)",
		pageID, order, role, nullInt64(imageID))
	if err != nil {
		return nil, fmt.Errorf("failed to insert section: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Section{ID: id, PageID: pageID, Order: order, Role: role, ImageID: imageID}, nil
}

func (s *SQLiteDatabase) GetSection(ctx context.Context, id int64) (*Section, error) {
	return getSection(ctx, s.db, id)
}

func getSection(ctx context.Context, q querier, id int64) (*Section, error) {
	row := q.QueryRowContext(ctx, "SELECT "+sectionColumns+" FROM sections WHERE id = ?", id)
	section, err := scanSection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("section %d: %w", id, ErrNotFound)
	}
	return section, err
}

func (s *SQLiteDatabase) GetSectionsByPage(ctx context.Context, pageID int64) ([]*Section, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+sectionColumns+" FROM sections WHERE page_id = ? ORDER BY order_index, id", pageID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	var sections []*Section
	for rows.Next() {
		section, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		sections = append(sections, section)
	}
	return sections, rows.Err()
}

// Images

func (s *SQLiteDatabase) CreateImage(ctx context.Context, image *Image) (*Image, error) {
	return s.insertImage(ctx, s.db, image)
}

func (s *SQLiteDatabase) insertImage(ctx context.Context, q querier, image *Image) (*Image, error) {
	if !image.SourceType.Valid() {
		return nil, fmt.Errorf("invalid image source type %q", image.SourceType)
	}
	created := s.timestamp()
	res, err := q.ExecContext(ctx,
		"INSERT INTO images (path, width, height, mime_type, source_type, import_batch_id, segment_index, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		image.Path, image.Width, image.Height, image.MimeType, string(image.SourceType),
		nullString(image.ImportBatchID), nullInt(image.SegmentIndex), created)
	if err != nil {
		return nil, fmt.Errorf("failed to insert image: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	stored := *image
	stored.ID = id
	stored.CreatedAt = time.Unix(0, created).UTC()
	return &stored, nil
}

func (s *SQLiteDatabase) GetImageByID(ctx context.Context, id int64) (*Image, error) {
	return getImage(ctx, s.db, id)
}

func getImage(ctx context.Context, q querier, id int64) (*Image, error) {
	row := q.QueryRowContext(ctx, "SELECT "+imageColumns+" FROM images WHERE id = ?", id)
	image, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image %d: %w", id, ErrNotFound)
	}
	return image, err
}

func (s *SQLiteDatabase) GetImagesByIDs(ctx context.Context, ids []int64) (map[int64]*Image, error) {
	result := make(map[int64]*Image, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	images, err := s.queryImages(ctx, "SELECT "+imageColumns+" FROM images WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return nil, err
	}
	for _, image := range images {
		result[image.ID] = image
	}
	return result, nil
}

func (s *SQLiteDatabase) FindImagesByImportSegment(ctx context.Context, batchIDs []string, segmentIndex int) ([]*Image, error) {
	if len(batchIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(batchIDs)+1)
	for _, id := range batchIDs {
		args = append(args, id)
	}
	args = append(args, segmentIndex)
	return s.queryImages(ctx,
		"SELECT "+imageColumns+" FROM images WHERE import_batch_id IN ("+placeholders(len(batchIDs))+") AND segment_index = ? ORDER BY id",
		args...)
}

func (s *SQLiteDatabase) FindImagesByPathFragment(ctx context.Context, fragment string) ([]*Image, error) {
	if fragment == "" {
		return nil, nil
	}
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	pattern := "%" + escaper.Replace(fragment) + "%"
	return s.queryImages(ctx, "SELECT "+imageColumns+` FROM images WHERE path LIKE ? ESCAPE '\' ORDER BY id`, pattern)
}

func (s *SQLiteDatabase) queryImages(ctx context.Context, query string, args ...any) ([]*Image, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var images []*Image
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

// History

func (s *SQLiteDatabase) Substitute(ctx context.Context, subs ...Substitution) (results []SubstitutionResult, err error) {
	if len(subs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	results = make([]SubstitutionResult, 0, len(subs))
	for _, sub := range subs {
		result, err := s.substitute(ctx, tx, sub)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit substitution: %w", err)
	}
	return results, nil
}

func (s *SQLiteDatabase) substitute(ctx context.Context, tx *sql.Tx, sub Substitution) (*SubstitutionResult, error) {
	if !sub.ActionType.Valid() {
		return nil, fmt.Errorf("invalid action type %q", sub.ActionType)
	}

	section, err := getSection(ctx, tx, sub.SectionID)
	if err != nil {
		return nil, err
	}

	var image *Image
	if sub.NewImage != nil {
		image, err = s.insertImage(ctx, tx, sub.NewImage)
	} else {
		image, err = getImage(ctx, tx, sub.NewImageID)
	}
	if err != nil {
		return nil, err
	}

	entry, err := s.appendHistory(ctx, tx, &HistoryEntry{
		SectionID:       section.ID,
		UserID:          sub.UserID,
		PreviousImageID: section.ImageID,
		NewImageID:      image.ID,
		ActionType:      sub.ActionType,
		Prompt:          sub.Prompt,
	})
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, "UPDATE sections SET image_id = ? WHERE id = ?", image.ID, section.ID); err != nil {
		return nil, fmt.Errorf("failed to repoint section %d: %w", section.ID, err)
	}

	return &SubstitutionResult{
		SectionID:       section.ID,
		PreviousImageID: section.ImageID,
		Image:           image,
		HistoryEntry:    entry,
	}, nil
}

func (s *SQLiteDatabase) AppendHistory(ctx context.Context, entry *HistoryEntry) (*HistoryEntry, error) {
	if !entry.ActionType.Valid() {
		return nil, fmt.Errorf("invalid action type %q", entry.ActionType)
	}
	return s.appendHistory(ctx, s.db, entry)
}

func (s *SQLiteDatabase) appendHistory(ctx context.Context, q querier, entry *HistoryEntry) (*HistoryEntry, error) {
	created := s.timestamp()
	res, err := q.ExecContext(ctx,
		"INSERT INTO history_entries (section_id, user_id, previous_image_id, new_image_id, action_type, prompt, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		entry.SectionID, entry.UserID, nullInt64(entry.PreviousImageID), entry.NewImageID,
		string(entry.ActionType), nullString(entry.Prompt), created)
	if err != nil {
		return nil, fmt.Errorf("failed to insert history entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	stored := *entry
	stored.ID = id
	stored.CreatedAt = time.Unix(0, created).UTC()
	return &stored, nil
}

func (s *SQLiteDatabase) GetHistoryBySection(ctx context.Context, sectionID int64, limit int) ([]*HistoryEntry, error) {
	return s.queryHistory(ctx,
		"SELECT "+historyColumns+" FROM history_entries WHERE section_id = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		sectionID, limit)
}

func (s *SQLiteDatabase) GetHistoryByImage(ctx context.Context, imageID int64, limit int) ([]*HistoryEntry, error) {
	return s.queryHistory(ctx,
		"SELECT "+historyColumns+" FROM history_entries WHERE previous_image_id = ? OR new_image_id = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		imageID, imageID, limit)
}

func (s *SQLiteDatabase) GetAllHistory(ctx context.Context) ([]*HistoryEntry, error) {
	return s.queryHistory(ctx, "SELECT "+historyColumns+" FROM history_entries ORDER BY id")
}

func (s *SQLiteDatabase) queryHistory(ctx context.Context, query string, args ...any) ([]*HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []*HistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Import

func (s *SQLiteDatabase) ImportPage(ctx context.Context, ownerID, title string, segments []ImportSegment) (page *Page, sections []*Section, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	page, err = s.createPage(ctx, tx, ownerID, title)
	if err != nil {
		return nil, nil, err
	}

	sections = make([]*Section, 0, len(segments))
	for i, segment := range segments {
		image, err := s.insertImage(ctx, tx, segment.Image)
		if err != nil {
			return nil, nil, err
		}
		section, err := s.createSection(ctx, tx, page.ID, i, segment.Role, &image.ID)
		if err != nil {
			return nil, nil, err
		}
		sections = append(sections, section)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit import: %w", err)
	}
	return page, sections, nil
}

// Scanning helpers

func scanSection(row rowScanner) (*Section, error) {
	var section Section
	var imageID sql.NullInt64
	if err := row.Scan(&section.ID, &section.PageID, &section.Order, &section.Role, &imageID); err != nil {
		return nil, err
	}
	section.ImageID = int64Ptr(imageID)
	return &section, nil
}

func scanImage(row rowScanner) (*Image, error) {
	var image Image
	var sourceType string
	var batchID sql.NullString
	var segment sql.NullInt64
	var created int64
	if err := row.Scan(&image.ID, &image.Path, &image.Width, &image.Height, &image.MimeType,
		&sourceType, &batchID, &segment, &created); err != nil {
		return nil, err
	}
	image.SourceType = SourceType(sourceType)
	image.ImportBatchID = batchID.String
	if segment.Valid {
		idx := int(segment.Int64)
		image.SegmentIndex = &idx
	}
	image.CreatedAt = time.Unix(0, created).UTC()
	return &image, nil
}

func scanHistoryEntry(row rowScanner) (*HistoryEntry, error) {
	var entry HistoryEntry
	var previous sql.NullInt64
	var actionType string
	var prompt sql.NullString
	var created int64
	if err := row.Scan(&entry.ID, &entry.SectionID, &entry.UserID, &previous, &entry.NewImageID,
		&actionType, &prompt, &created); err != nil {
		return nil, err
	}
	entry.PreviousImageID = int64Ptr(previous)
	entry.ActionType = ActionType(actionType)
	entry.Prompt = prompt.String
	entry.CreatedAt = time.Unix(0, created).UTC()
	return &entry, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}
