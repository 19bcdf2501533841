package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/jo-hoe/goseam/internal/backend/database"
)

// LedgerRow is the Parquet schema of one history entry.
type LedgerRow struct {
	ID              int64  `parquet:"id"`
	SectionID       int64  `parquet:"section_id"`
	UserID          string `parquet:"user_id"`
	PreviousImageID *int64 `parquet:"previous_image_id,optional"`
	NewImageID      int64  `parquet:"new_image_id"`
	ActionType      string `parquet:"action_type"`
	Prompt          string `parquet:"prompt"`
	CreatedAtMillis int64  `parquet:"created_at_ms"`
}

func rowOf(entry *database.HistoryEntry) LedgerRow {
	return LedgerRow{
		ID:              entry.ID,
		SectionID:       entry.SectionID,
		UserID:          entry.UserID,
		PreviousImageID: entry.PreviousImageID,
		NewImageID:      entry.NewImageID,
		ActionType:      string(entry.ActionType),
		Prompt:          entry.Prompt,
		CreatedAtMillis: entry.CreatedAt.UnixMilli(),
	}
}

// WriteLedger encodes entries as a Parquet file onto w.
func WriteLedger(w io.Writer, entries []*database.HistoryEntry) error {
	rows := make([]LedgerRow, len(entries))
	for i, entry := range entries {
		rows[i] = rowOf(entry)
	}

	writer := parquet.NewGenericWriter[LedgerRow](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write ledger rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// ReadLedger decodes a Parquet file written by WriteLedger.
func ReadLedger(r io.ReaderAt, size int64) ([]LedgerRow, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[LedgerRow](file)
	defer func() {
		_ = reader.Close()
	}()

	var rows []LedgerRow
	batch := make([]LedgerRow, 128)
	for {
		n, err := reader.Read(batch)
		rows = append(rows, batch[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger rows: %w", err)
		}
	}
	return rows, nil
}

// ExportLedger writes the complete history ledger to path and returns the
// number of entries written.
func ExportLedger(ctx context.Context, db database.DatabaseService, path string) (int, error) {
	entries, err := db.GetAllHistory(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load ledger: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteLedger(file, entries); err != nil {
		_ = file.Close()
		return 0, err
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("failed to close %s: %w", path, err)
	}

	slog.Info("ledger exported", "path", path, "entries", len(entries))
	return len(entries), nil
}

// InspectLedger reads back an exported ledger file.
func InspectLedger(path string) ([]LedgerRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return ReadLedger(file, info.Size())
}
