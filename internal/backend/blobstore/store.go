package blobstore

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned when no blob is stored under a key.
var ErrBlobNotFound = errors.New("blob not found")

// ErrBlobExists is returned by Put when the key is already taken. Stored
// blobs are immutable.
var ErrBlobExists = errors.New("blob already exists")

type Blob struct {
	Data        []byte
	ContentType string
}

// Store is an opaque key/value store for encoded image bytes. Put never
// replaces an existing blob.
type Store interface {
	Put(ctx context.Context, key string, blob Blob) error
	Get(ctx context.Context, key string) (*Blob, error)
	Close() error
}
