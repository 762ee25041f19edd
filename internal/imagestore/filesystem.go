package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	rfs "resdex/internal/fs"
	"resdex/internal/resource"
)

// FileSystemStore writes each image once under a two-level fan-out:
//
//	<root>/
//	  <hash[:2]>/
//	    <hash>
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates the store, creating root if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

func (s *FileSystemStore) path(hash string) string {
	return filepath.Join(s.root, hash[:2], hash)
}

// AddImage stores data and returns its reference. Storing the same bytes
// twice is a no-op.
func (s *FileSystemStore) AddImage(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := Ref(data)
	hash, _ := parseRef(ref)
	dest := s.path(hash)

	if _, err := os.Stat(dest); err == nil {
		return ref, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("creating image shard: %w", err)
	}
	if err := rfs.WriteFile(dest, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", fmt.Errorf("writing image %s: %w", hash, err)
	}
	return ref, nil
}

// GetImage copies the image behind ref to w.
func (s *FileSystemStore) GetImage(ref string, w io.Writer) error {
	hash, err := parseRef(ref)
	if err != nil {
		return err
	}
	f, err := os.Open(s.path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the image root is an accessible directory.
func (s *FileSystemStore) ValidateSetup() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("image root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("image root is not a directory: %s", s.root)
	}
	return nil
}

var _ resource.ImageStore = (*FileSystemStore)(nil)
