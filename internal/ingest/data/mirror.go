package data

import (
	"context"

	pkgminio "github.com/lk2023060901/file-ingest-backend/internal/pkg/minio"
)

// ObjectMirror copies stored artifacts into the public bucket.
type ObjectMirror struct {
	client *pkgminio.Client
}

func NewObjectMirror(client *pkgminio.Client) *ObjectMirror {
	return &ObjectMirror{client: client}
}

func (m *ObjectMirror) Put(ctx context.Context, key, path, contentType string) error {
	_, err := m.client.FPutObject(ctx, key, path, pkgminio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"sanitized": "true"},
	})
	return err
}

func (m *ObjectMirror) Remove(ctx context.Context, key string) error {
	err := m.client.RemoveObject(ctx, key)
	if pkgminio.IsNotFound(err) {
		return nil
	}
	return err
}
