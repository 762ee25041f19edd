package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	rfs "resdex/internal/fs"
)

// DirTarget writes exported files into a local directory.
type DirTarget struct {
	dir string
}

var _ Target = (*DirTarget)(nil)

func NewDirTarget(dir string) (*DirTarget, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	return &DirTarget{dir: dir}, nil
}

func (t *DirTarget) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid export name %q", name)
	}
	dest := filepath.Join(t.dir, name)
	if err := rfs.WriteFile(dest, r, size); err != nil {
		return fmt.Errorf("exporting %s: %w", name, err)
	}
	return nil
}

func (t *DirTarget) Describe() string { return t.dir }
