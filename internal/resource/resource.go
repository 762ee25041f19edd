package resource

import (
	"path/filepath"
	"strings"
	"time"
)

// EmptyHash is the sha1 of zero bytes. It never identifies a resource.
const EmptyHash = "da39a3ee5e6b4b0d3255bfef95601890afd80709"

// Entry is a metadata row together with its auxiliary tag, uri and icon rows.
type Entry struct {
	Hash     string
	Metadata Metadata
	Tags     []string
	URIs     []string
	Icons    []string
}

// Resource is the assembled, externally visible view of a file. Values are
// built fresh for every observation and never mutated afterwards.
type Resource struct {
	Domain      Domain
	Path        string
	FileName    string
	Hash        string
	Size        int64
	Mtime       time.Time
	Ino         uint64
	Kind        FileKind
	IsDirectory bool
	// StoredPath is set when the file lives inside the managed root.
	StoredPath string
	Name       string
	Metadata   Metadata
	Icons      []string
	URIs       []string
	Tags       []string
}

// DomainedPath returns the resource's path relative to root when stored.
func (r *Resource) DomainedPath(root string) (string, bool) {
	if r.StoredPath == "" {
		return "", false
	}
	return DomainedPath(root, r.StoredPath)
}

// FromSnapshot assembles a Resource for a file stored under root.
func FromSnapshot(root string, snap *Snapshot, entry *Entry) *Resource {
	p := AbsPath(root, snap.DomainedPath)
	r := &Resource{
		Domain:      DomainOf(snap.DomainedPath),
		Path:        p,
		FileName:    snap.Name(),
		Hash:        snap.Hash,
		Size:        snap.Size,
		Mtime:       snap.Mtime,
		Ino:         snap.Ino,
		Kind:        snap.Kind,
		IsDirectory: snap.Kind == KindDirectory,
		StoredPath:  p,
	}
	attach(r, entry)
	return r
}

// FromFile assembles a Resource from a fresh stat. storedPath is empty when
// the file is outside the managed root.
func FromFile(file *FileDescriptor, domain Domain, hash string, kind FileKind, storedPath string, entry *Entry) *Resource {
	r := &Resource{
		Domain:      domain,
		Path:        file.Path,
		FileName:    file.FileName,
		Hash:        hash,
		Size:        file.Size,
		Mtime:       file.Mtime,
		Ino:         file.Ino,
		Kind:        kind,
		IsDirectory: file.IsDirectory,
		StoredPath:  storedPath,
	}
	attach(r, entry)
	return r
}

func attach(r *Resource, entry *Entry) {
	if entry != nil {
		r.Metadata = entry.Metadata
		r.Metadata.Variants = append([]Variant(nil), entry.Metadata.Variants...)
		r.Tags = append([]string(nil), entry.Tags...)
		r.URIs = append([]string(nil), entry.URIs...)
		r.Icons = append([]string(nil), entry.Icons...)
	}
	r.Name = r.Metadata.Name
	if r.Name == "" {
		r.Name = displayName(r.FileName, r.IsDirectory)
	}
}

func displayName(fileName string, isDir bool) string {
	if isDir {
		return fileName
	}
	return strings.TrimSuffix(fileName, filepath.Ext(fileName))
}
