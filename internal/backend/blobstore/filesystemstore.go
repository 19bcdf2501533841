package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const contentTypeSuffix = ".content-type"

// FilesystemStore writes blobs below a root directory, with the content type
// kept in a sidecar file next to each blob.
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if root == "" {
		return nil, errors.New("filesystem blob store requires a directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory %s: %w", root, err)
	}
	return &FilesystemStore{root: root}, nil
}

func (s *FilesystemStore) path(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.root, cleaned), nil
}

func (s *FilesystemStore) Put(_ context.Context, key string, blob Blob) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for blob %s: %w", key, err)
	}
	if err := writeExclusive(p, blob.Data); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w", key, ErrBlobExists)
		}
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	if err := os.WriteFile(p+contentTypeSuffix, []byte(blob.ContentType), 0o644); err != nil {
		return fmt.Errorf("failed to write content type for blob %s: %w", key, err)
	}
	return nil
}

// writeExclusive creates path and fails with fs.ErrExist if it is present.
func writeExclusive(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func (s *FilesystemStore) Get(_ context.Context, key string) (*Blob, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrBlobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	contentType, err := os.ReadFile(p + contentTypeSuffix)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read content type for blob %s: %w", key, err)
	}
	return &Blob{Data: data, ContentType: string(contentType)}, nil
}

func (s *FilesystemStore) Close() error {
	return nil
}
