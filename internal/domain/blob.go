package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver copies the order-event log and ladder snapshots to cold storage.
type Archiver interface {
	ArchiveEvents(ctx context.Context, market string, day time.Time) (int64, error)
	UploadSnapshot(ctx context.Context, market string) error
}
