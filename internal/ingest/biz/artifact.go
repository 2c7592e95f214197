package biz

import (
	"context"
	"time"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
)

// StoredArtifact is the audit record of one sanitized file.
type StoredArtifact struct {
	ID         string
	Filename   string
	Folder     string
	Size       int64
	FileType   string // extension actually written
	MIMEType   string
	Checksum   string // BLAKE3-256, hex
	Uploader   types.Uploader
	EntityType string
	EntityID   string
	UploaderIP string
	UserAgent  string
	CreatedAt  time.Time
}

// ObjectKey is the artifact's key in the public mirror.
func (a *StoredArtifact) ObjectKey() string {
	return a.Folder + "/" + a.Filename
}

// ArtifactRepo persists audit records.
type ArtifactRepo interface {
	Create(ctx context.Context, a *StoredArtifact) error
	// GetByLocation returns ErrArtifactNotFound when nothing is recorded at folder/filename.
	GetByLocation(ctx context.Context, folder, filename string) (*StoredArtifact, error)
	Delete(ctx context.Context, id string) error
}

// Mirror keeps an optional object-store copy of stored artifacts.
type Mirror interface {
	Put(ctx context.Context, key, path, contentType string) error
	// Remove succeeds when the object is already gone.
	Remove(ctx context.Context, key string) error
}

// PurgeQueue schedules a file for deletion by the janitor.
type PurgeQueue interface {
	Enqueue(ctx context.Context, path string) error
}

// Metadata is the request provenance recorded with an artifact.
type Metadata struct {
	Uploader   types.Uploader
	EntityType string
	EntityID   string
	UploaderIP string
	UserAgent  string
}
