package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"resdex/internal/resource"
)

// MemoryStore keeps images in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	images map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{images: make(map[string][]byte)}
}

func (m *MemoryStore) AddImage(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := Ref(data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[ref]; !ok {
		m.images[ref] = append([]byte(nil), data...)
	}
	return ref, nil
}

func (m *MemoryStore) GetImage(ref string, w io.Writer) error {
	if _, err := parseRef(ref); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.images[ref]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}

// Len returns the number of distinct images held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.images)
}

func (m *MemoryStore) ValidateSetup() error {
	return nil
}

var _ resource.ImageStore = (*MemoryStore)(nil)
