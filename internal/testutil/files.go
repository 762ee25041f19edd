package testutil

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// WriteFile creates dir/name with content, creating parents, and returns the
// absolute path.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("creating parent of %s: %v", p, err)
	}
	if err := os.WriteFile(p, content, 0644); err != nil {
		t.Fatalf("writing %s: %v", p, err)
	}
	return p
}

// WriteZip creates a zip archive at dir/name holding entries (name to content).
func WriteZip(t *testing.T, dir, name string, entries map[string]string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("creating parent of %s: %v", p, err)
	}
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("creating %s: %v", p, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for entryName, content := range entries {
		w, err := zw.Create(entryName)
		if err != nil {
			t.Fatalf("adding %s to %s: %v", entryName, p, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("writing %s to %s: %v", entryName, p, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing %s: %v", p, err)
	}
	return p
}

// SetMtime moves the modification time of path to mtime.
func SetMtime(t *testing.T, path string, mtime time.Time) {
	t.Helper()

	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("setting mtime of %s: %v", path, err)
	}
}
