package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Placement records how a file reached its destination.
type Placement int

const (
	PlacedByRename Placement = iota
	PlacedByLink
	PlacedByCopy
)

func (p Placement) String() string {
	switch p {
	case PlacedByRename:
		return "rename"
	case PlacedByLink:
		return "link"
	case PlacedByCopy:
		return "copy"
	default:
		return "unknown"
	}
}

// Place puts src at dst. When move is set and both share a directory the file
// is renamed; otherwise a hard link is attempted, falling back to a byte copy
// when linking is unsupported. Directories are always copied unless renamed.
func Place(src, dst string, move bool) (Placement, error) {
	if move && filepath.Dir(src) == filepath.Dir(dst) {
		if err := os.Rename(src, dst); err != nil {
			return 0, fmt.Errorf("renaming %s: %w", src, err)
		}
		return PlacedByRename, nil
	}

	info, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("creating destination directory: %w", err)
	}

	if info.IsDir() {
		if err := copyDir(src, dst); err != nil {
			return 0, err
		}
		return PlacedByCopy, nil
	}

	if err := os.Link(src, dst); err == nil {
		return PlacedByLink, nil
	} else if !IsCrossDevice(err) {
		return 0, fmt.Errorf("linking %s: %w", src, err)
	}

	if err := CopyFile(src, dst); err != nil {
		return 0, err
	}
	return PlacedByCopy, nil
}

// CopyFile copies src to dst through a temp file and an atomic rename, so a
// partially written file is never visible at dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	return writeFile(dst, in, info.Size(), info.Mode().Perm())
}

// WriteFile atomically writes r to dst, verifying the byte count.
func WriteFile(dst string, r io.Reader, expectedSize int64) error {
	return writeFile(dst, r, expectedSize, 0644)
}

func writeFile(destPath string, r io.Reader, expectedSize int64, perm fs.FileMode) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if expectedSize >= 0 && written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return CopyFile(p, target)
	})
}

// Remove deletes a file or directory tree. A missing path is not an error.
func Remove(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// SameFile reports whether a and b refer to the same inode.
func SameFile(a, b string) bool {
	ia, err := os.Stat(a)
	if err != nil {
		return false
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ia, ib)
}
