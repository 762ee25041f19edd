package imagestore

import (
	"context"
	"fmt"
	"io"

	"resdex/internal/config"
)

// Store is an ImageStore that can also read images back.
type Store interface {
	AddImage(ctx context.Context, data []byte) (string, error)
	GetImage(ref string, w io.Writer) error
	ValidateSetup() error
}

// NewFromConfig creates a Store based on the images config type.
func NewFromConfig(cfg config.ImagesConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem image store requires root to be set")
		}
		return NewFileSystemStore(cfg.Root)
	default:
		return nil, fmt.Errorf("unknown image store type: %s", cfg.Type)
	}
}
