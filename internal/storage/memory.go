package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStorage keeps blobs in process memory. It backs local development
// when no MinIO endpoint is configured, and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	// FailDelete, when set, makes Delete fail for the matching refs.
	FailDelete func(ref string) error
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]memoryObject)}
}

func (m *MemoryStorage) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read blob: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return "", fmt.Errorf("blob size mismatch: got %d want %d", len(data), size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	return key, nil
}

func (m *MemoryStorage) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.FailDelete != nil {
		if err := m.FailDelete(ref); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[ref]; !ok {
		return ErrBlobNotFound
	}
	delete(m.objects, ref)
	return nil
}

func (m *MemoryStorage) PresignedURL(ctx context.Context, ref string, expires time.Duration) (string, error) {
	return "memory://blobs/" + url.PathEscape(ref) + "?expires=" + fmt.Sprint(int(expires.Seconds())), nil
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Has reports whether ref is stored.
func (m *MemoryStorage) Has(ref string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[ref]
	return ok
}

// Get returns a copy of the stored bytes.
func (m *MemoryStorage) Get(ref string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[ref]
	if !ok {
		return nil, "", false
	}
	return bytes.Clone(o.data), o.contentType, true
}
