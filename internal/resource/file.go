package resource

import (
	"path/filepath"
	"strings"
	"time"
)

// FileKind is the coarse content classification produced while hashing.
type FileKind string

const (
	KindZip       FileKind = "zip"
	KindDirectory FileKind = "directory"
	KindUnknown   FileKind = "unknown"
)

// FileDescriptor is the result of a single stat call. It is never persisted.
type FileDescriptor struct {
	Path        string
	FileName    string
	Size        int64
	Mtime       time.Time
	Ctime       time.Time
	Atime       time.Time
	Ino         uint64
	IsDirectory bool
}

// Ext returns the file extension including the leading dot. Directories have none.
func (f *FileDescriptor) Ext() string {
	if f.IsDirectory {
		return ""
	}
	return filepath.Ext(f.FileName)
}

// SameState reports whether other describes the same inode with the same size
// and modification time.
func (f *FileDescriptor) SameState(other *FileDescriptor) bool {
	if f == nil || other == nil {
		return false
	}
	return f.Ino == other.Ino && f.Size == other.Size && f.Mtime.Equal(other.Mtime)
}

// Snapshot is the persisted record of a file's last known identity and the
// content hash derived from it. Mtime is kept at millisecond precision.
type Snapshot struct {
	DomainedPath string
	Ino          uint64
	Mtime        time.Time
	Size         int64
	Kind         FileKind
	Hash         string
}

// TakeSnapshot builds the snapshot that describes file after hashing it.
func TakeSnapshot(domainedPath string, file *FileDescriptor, hash string, kind FileKind) *Snapshot {
	return &Snapshot{
		DomainedPath: domainedPath,
		Ino:          file.Ino,
		Mtime:        time.UnixMilli(file.Mtime.UnixMilli()),
		Size:         file.Size,
		Kind:         kind,
		Hash:         hash,
	}
}

// IsValid reports whether snap still describes file. It is false when there
// is no snapshot, when the inode differs, or when the file was modified after
// the snapshot was taken. Callers must re-hash whenever this returns false.
func IsValid(file *FileDescriptor, snap *Snapshot) bool {
	if file == nil || snap == nil {
		return false
	}
	if snap.Ino != file.Ino {
		return false
	}
	return snap.Mtime.UnixMilli() >= file.Mtime.UnixMilli()
}

// Rebase returns a copy of snap recorded under a different domained path.
func (s *Snapshot) Rebase(domainedPath string) *Snapshot {
	c := *s
	c.DomainedPath = domainedPath
	return &c
}

// Name returns the file name portion of the domained path.
func (s *Snapshot) Name() string {
	i := strings.LastIndexByte(s.DomainedPath, '/')
	return s.DomainedPath[i+1:]
}
