package biz

import (
	"context"
	"errors"
	"sync"
)

type memRepo struct {
	mu        sync.Mutex
	byID      map[string]*StoredArtifact
	createErr error
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]*StoredArtifact{}}
}

func (r *memRepo) Create(_ context.Context, a *StoredArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	cp := *a
	r.byID[a.ID] = &cp
	return nil
}

func (r *memRepo) GetByLocation(_ context.Context, folder, filename string) (*StoredArtifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.Folder == folder && a.Filename == filename {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrArtifactNotFound
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type memMirror struct {
	mu      sync.Mutex
	objects map[string]string
	putErr  error
}

func newMemMirror() *memMirror {
	return &memMirror{objects: map[string]string{}}
}

func (m *memMirror) Put(_ context.Context, key, _ string, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = contentType
	return nil
}

func (m *memMirror) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memMirror) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

type memPurge struct {
	mu    sync.Mutex
	paths []string
}

func (q *memPurge) Enqueue(_ context.Context, path string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paths = append(q.paths, path)
	return nil
}

func (q *memPurge) queued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.paths...)
}

// failingReader fails the test if the use case touches the body.
type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("body must not be read")
}
