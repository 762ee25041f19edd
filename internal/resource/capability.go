package resource

import "context"

// Prober stats paths.
type Prober interface {
	// Probe returns ErrNotFound (possibly wrapped) when path does not exist.
	Probe(path string) (*FileDescriptor, error)
}

// Hasher computes content hashes.
type Hasher interface {
	Hash(ctx context.Context, path string, size int64) (string, error)
	HashAndClassify(ctx context.Context, path string, size int64, isDir bool) (string, FileKind, error)
}

// ParseResult is everything a parser could extract from one file.
type ParseResult struct {
	Metadata Metadata
	URIs     []string
	Icons    [][]byte
	Name     string
}

// Parser extracts structured metadata. Failures are not fatal to indexing.
type Parser interface {
	Parse(ctx context.Context, path string, kind FileKind, domain Domain) (*ParseResult, error)
}

// ImageStore keeps icon bytes out of the metadata rows.
type ImageStore interface {
	AddImage(ctx context.Context, data []byte) (string, error)
}

// Page restricts list queries. A zero Limit means no limit.
type Page struct {
	Offset int
	Limit  int
}

// SnapshotStore persists Snapshots keyed by domained path.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, domainedPath string) (*Snapshot, error)
	GetSnapshotByInode(ctx context.Context, ino uint64) (*Snapshot, error)
	GetSnapshotsByHash(ctx context.Context, hash string) ([]*Snapshot, error)
	GetSnapshotsByHashes(ctx context.Context, hashes []string) ([]*Snapshot, error)
	// ListSnapshots returns snapshots whose domained path starts with prefix.
	ListSnapshots(ctx context.Context, prefix string, page Page) ([]*Snapshot, error)
	// SearchSnapshots matches keyword against domained paths inside prefix.
	SearchSnapshots(ctx context.Context, prefix, keyword string, page Page) ([]*Snapshot, error)
	FindSnapshotsByInodes(ctx context.Context, inos []uint64) ([]*Snapshot, error)
	UpsertSnapshot(ctx context.Context, snap *Snapshot) error
	UpsertSnapshots(ctx context.Context, snaps []*Snapshot) error
	RemoveSnapshot(ctx context.Context, domainedPath string) error
	RemoveSnapshotsUnder(ctx context.Context, prefix string) error
}

// Update is a post-hoc change to a metadata row. Empty fields are left
// untouched and list fields are appended. RemoveTags is applied after Tags.
type Update struct {
	Hash       string
	Name       string
	Github     *GitSource
	Gitlab     *GitSource
	Curseforge *CurseforgeSource
	Modrinth   *ModrinthSource
	Instance   *InstanceSource
	Tags       []string
	RemoveTags []string
	URIs       []string
	Icons      []string
}

// MetadataStore persists content-addressed metadata and its auxiliary rows.
type MetadataStore interface {
	GetEntry(ctx context.Context, hash string) (*Entry, error)
	GetEntries(ctx context.Context, hashes []string) (map[string]*Entry, error)
	// UpsertMetadata inserts or merges meta into the row for hash and appends
	// uris and icons, all in one transaction.
	UpsertMetadata(ctx context.Context, hash string, meta Metadata, uris, icons []string) error
	UpdateEntries(ctx context.Context, updates []Update) error
	HashesByURIs(ctx context.Context, uris []string) ([]string, error)
	HashesByURIPrefix(ctx context.Context, prefix string) ([]string, error)
	// SweepOrphans deletes rows whose hash no snapshot references.
	SweepOrphans(ctx context.Context) (int64, error)
}

// Store is the full persistence surface the engine owns.
type Store interface {
	SnapshotStore
	MetadataStore
	Close() error
}
