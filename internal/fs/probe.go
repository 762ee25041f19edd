package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"resdex/internal/resource"
)

// OSProber is the real File Probe. Every call performs exactly one stat.
type OSProber struct{}

// NewOSProber creates a prober that operates on the real filesystem.
func NewOSProber() *OSProber {
	return &OSProber{}
}

// Probe stats path and returns a FileDescriptor. A missing path yields an
// error wrapping resource.ErrNotFound.
func (p *OSProber) Probe(path string) (*resource.FileDescriptor, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", absPath, resource.ErrNotFound)
		}
		return nil, fmt.Errorf("stat path: %w", err)
	}

	if err := checkMode(absPath, info.Mode()); err != nil {
		return nil, err
	}

	return Describe(absPath, info), nil
}

// Describe converts a FileInfo for absPath into a FileDescriptor.
func Describe(absPath string, info fs.FileInfo) *resource.FileDescriptor {
	st := extractStat(info)
	return &resource.FileDescriptor{
		Path:        absPath,
		FileName:    filepath.Base(absPath),
		Size:        info.Size(),
		Mtime:       info.ModTime(),
		Ctime:       st.ctime,
		Atime:       st.atime,
		Ino:         st.ino,
		IsDirectory: info.IsDir(),
	}
}

func checkMode(absPath string, mode fs.FileMode) error {
	if mode&os.ModeDevice != 0 {
		return fmt.Errorf("device files not supported: %s", absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return fmt.Errorf("named pipes not supported: %s", absPath)
	}
	if mode&os.ModeSocket != 0 {
		return fmt.Errorf("sockets not supported: %s", absPath)
	}
	return nil
}

// ListDir returns descriptors for the direct children of dir, skipping names
// matched by ignore and entries that vanish between readdir and stat.
func (p *OSProber) ListDir(dir string, ignore *IgnoreMatcher) ([]*resource.FileDescriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	files := make([]*resource.FileDescriptor, 0, len(entries))
	for _, entry := range entries {
		if ignore != nil && ignore.Match(entry.Name()) {
			continue
		}
		file, err := p.Probe(filepath.Join(dir, entry.Name()))
		if err != nil {
			if errors.Is(err, resource.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !file.IsDirectory && !entry.Type().IsRegular() && entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		files = append(files, file)
	}
	return files, nil
}

var _ resource.Prober = (*OSProber)(nil)
