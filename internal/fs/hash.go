package fs

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"resdex/internal/resource"
)

// bufferSize is the buffer size for streaming file reads (32KB).
const bufferSize = 32 * 1024

// ErrFileChanged is returned when a file is modified while it is being hashed.
// It is transient: the caller should retry once the writer is done.
var ErrFileChanged = errors.New("file changed while hashing")

var (
	zipMagic      = []byte("PK\x03\x04")
	emptyZipMagic = []byte("PK\x05\x06")
)

// SHA1Hasher hashes file content with sha1 and classifies it by magic bytes.
// Directories are hashed over their sorted listing of relative paths and
// sizes, so identical copies of a world folder share one hash.
type SHA1Hasher struct{}

func NewSHA1Hasher() *SHA1Hasher {
	return &SHA1Hasher{}
}

// Hash returns the content hash of the file at path.
func (h *SHA1Hasher) Hash(ctx context.Context, path string, size int64) (string, error) {
	sum, _, err := h.HashAndClassify(ctx, path, size, false)
	return sum, err
}

// HashAndClassify hashes path and reports its FileKind. The file is stat'ed
// before and after reading; any change in between yields ErrFileChanged.
func (h *SHA1Hasher) HashAndClassify(ctx context.Context, path string, size int64, isDir bool) (string, resource.FileKind, error) {
	before, err := os.Stat(path)
	if err != nil {
		return "", "", fmt.Errorf("stat before hashing: %w", err)
	}

	var sum string
	kind := resource.KindDirectory
	if isDir || before.IsDir() {
		sum, err = hashDirectory(ctx, path)
	} else {
		sum, kind, err = hashFile(ctx, path)
	}
	if err != nil {
		return "", "", err
	}

	after, err := os.Stat(path)
	if err != nil {
		return "", "", fmt.Errorf("stat after hashing: %w", err)
	}
	if err := validateStatUnchanged(before, after); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrFileChanged, err)
	}
	if !before.IsDir() && size >= 0 && before.Size() != size {
		return "", "", fmt.Errorf("%w: size %d, expected %d", ErrFileChanged, before.Size(), size)
	}

	return sum, kind, nil
}

func hashFile(ctx context.Context, path string) (string, resource.FileKind, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	h := sha1.New()
	buf := make([]byte, bufferSize)
	var head []byte
	for {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		n, err := f.Read(buf)
		if n > 0 {
			if head == nil {
				head = append([]byte(nil), buf[:min(n, 4)]...)
			}
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("reading file: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), classify(head), nil
}

func classify(head []byte) resource.FileKind {
	if bytes.Equal(head, zipMagic) || bytes.Equal(head, emptyZipMagic) {
		return resource.KindZip
	}
	return resource.KindUnknown
}

func hashDirectory(ctx context.Context, root string) (string, error) {
	type item struct {
		rel  string
		size int64
	}
	var items []item
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == root {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		rel, _ := filepath.Rel(root, p)
		size := info.Size()
		if d.IsDir() {
			size = -1
		}
		items = append(items, item{rel: filepath.ToSlash(rel), size: size})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].rel < items[j].rel })
	h := sha1.New()
	for _, it := range items {
		fmt.Fprintf(h, "%s\x00%d\n", it.rel, it.size)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// validateStatUnchanged compares two stats of the same path taken around a read.
func validateStatUnchanged(info1, info2 fs.FileInfo) error {
	if info1.Size() != info2.Size() {
		return fmt.Errorf("size changed: %d -> %d", info1.Size(), info2.Size())
	}
	if !info1.ModTime().Equal(info2.ModTime()) {
		return fmt.Errorf("mtime changed: %v -> %v", info1.ModTime(), info2.ModTime())
	}
	st1, st2 := extractStat(info1), extractStat(info2)
	if st1.ino != st2.ino {
		return fmt.Errorf("inode changed: %d -> %d", st1.ino, st2.ino)
	}
	return nil
}

var _ resource.Hasher = (*SHA1Hasher)(nil)
