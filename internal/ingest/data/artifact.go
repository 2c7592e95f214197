package data

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/biz"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
)

// ArtifactPO is the stored_artifacts row. Rows are hard-deleted together
// with the file they describe.
type ArtifactPO struct {
	ID     string `gorm:"type:uuid;primarykey"`
	Name   string `gorm:"size:64;not null;uniqueIndex:idx_stored_artifacts_location,priority:2"`
	Folder string `gorm:"size:128;not null;uniqueIndex:idx_stored_artifacts_location,priority:1"`

	SizeBytes int64  `gorm:"not null"`
	FileType  string `gorm:"size:8;not null"`
	MIMEType  string `gorm:"size:128;not null"`
	Checksum  string `gorm:"size:64;not null"`

	// admin or employee
	UploaderType string `gorm:"size:16;not null"`
	UploaderID   string `gorm:"size:64;not null;index"`

	// optional link to a business entity
	EntityType *string `gorm:"size:64;index:idx_stored_artifacts_entity,priority:1"`
	EntityID   *string `gorm:"size:64;index:idx_stored_artifacts_entity,priority:2"`

	// request origin
	UploaderIP *string `gorm:"size:45"`
	UserAgent  *string `gorm:"size:512"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ArtifactPO) TableName() string {
	return "stored_artifacts"
}

// ArtifactRepo implements biz.ArtifactRepo on gorm
type ArtifactRepo struct {
	db *gorm.DB
}

func NewArtifactRepo(db *gorm.DB) *ArtifactRepo {
	return &ArtifactRepo{db: db}
}

func (r *ArtifactRepo) Create(ctx context.Context, a *biz.StoredArtifact) error {
	return r.db.WithContext(ctx).Create(toPO(a)).Error
}

func (r *ArtifactRepo) GetByLocation(ctx context.Context, folder, filename string) (*biz.StoredArtifact, error) {
	var po ArtifactPO
	err := r.db.WithContext(ctx).
		Where("folder = ? AND name = ?", folder, filename).
		First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, biz.ErrArtifactNotFound
	}
	if err != nil {
		return nil, err
	}
	return toArtifact(&po), nil
}

func (r *ArtifactRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&ArtifactPO{}).Error
}

func toPO(a *biz.StoredArtifact) *ArtifactPO {
	return &ArtifactPO{
		ID:           a.ID,
		Name:         a.Filename,
		Folder:       a.Folder,
		SizeBytes:    a.Size,
		FileType:     a.FileType,
		MIMEType:     a.MIMEType,
		Checksum:     a.Checksum,
		UploaderType: string(a.Uploader.Type),
		UploaderID:   a.Uploader.ID,
		EntityType:   optional(a.EntityType),
		EntityID:     optional(a.EntityID),
		UploaderIP:   optional(a.UploaderIP),
		UserAgent:    optional(a.UserAgent),
		CreatedAt:    a.CreatedAt,
	}
}

func toArtifact(po *ArtifactPO) *biz.StoredArtifact {
	return &biz.StoredArtifact{
		ID:         po.ID,
		Filename:   po.Name,
		Folder:     po.Folder,
		Size:       po.SizeBytes,
		FileType:   po.FileType,
		MIMEType:   po.MIMEType,
		Checksum:   po.Checksum,
		Uploader:   types.Uploader{Type: types.UploaderType(po.UploaderType), ID: po.UploaderID},
		EntityType: deref(po.EntityType),
		EntityID:   deref(po.EntityID),
		UploaderIP: deref(po.UploaderIP),
		UserAgent:  deref(po.UserAgent),
		CreatedAt:  po.CreatedAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
