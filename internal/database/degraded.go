package database

import (
	"context"

	"resdex/internal/resource"
)

// UnavailableDatabase is the store used when the index database cannot be
// opened. Reads return nothing and writes are logged and dropped, so the
// engine keeps serving resources straight from disk.
type UnavailableDatabase struct {
	logger resource.Logger
	cause  error
}

func NewUnavailableDatabase(cause error, logger resource.Logger) *UnavailableDatabase {
	if logger == nil {
		logger = resource.NewNopLogger()
	}
	return &UnavailableDatabase{logger: logger, cause: cause}
}

// Cause returns the error that made the database unavailable.
func (u *UnavailableDatabase) Cause() error { return u.cause }

func (u *UnavailableDatabase) drop(op string, args ...any) error {
	u.logger.Warn("database unavailable, dropping write", append([]any{"op", op, "cause", u.cause}, args...)...)
	return nil
}

func (u *UnavailableDatabase) GetSnapshot(context.Context, string) (*resource.Snapshot, error) {
	return nil, nil
}

func (u *UnavailableDatabase) GetSnapshotByInode(context.Context, uint64) (*resource.Snapshot, error) {
	return nil, nil
}

func (u *UnavailableDatabase) GetSnapshotsByHash(context.Context, string) ([]*resource.Snapshot, error) {
	return nil, nil
}

func (u *UnavailableDatabase) GetSnapshotsByHashes(context.Context, []string) ([]*resource.Snapshot, error) {
	return nil, nil
}

func (u *UnavailableDatabase) ListSnapshots(context.Context, string, resource.Page) ([]*resource.Snapshot, error) {
	return nil, nil
}

func (u *UnavailableDatabase) SearchSnapshots(context.Context, string, string, resource.Page) ([]*resource.Snapshot, error) {
	return nil, nil
}

func (u *UnavailableDatabase) FindSnapshotsByInodes(context.Context, []uint64) ([]*resource.Snapshot, error) {
	return nil, nil
}

func (u *UnavailableDatabase) UpsertSnapshot(_ context.Context, snap *resource.Snapshot) error {
	return u.drop("upsert_snapshot", "path", snap.DomainedPath)
}

func (u *UnavailableDatabase) UpsertSnapshots(_ context.Context, snaps []*resource.Snapshot) error {
	return u.drop("upsert_snapshots", "count", len(snaps))
}

func (u *UnavailableDatabase) RemoveSnapshot(_ context.Context, domainedPath string) error {
	return u.drop("remove_snapshot", "path", domainedPath)
}

func (u *UnavailableDatabase) RemoveSnapshotsUnder(_ context.Context, prefix string) error {
	return u.drop("remove_snapshots", "prefix", prefix)
}

func (u *UnavailableDatabase) GetEntry(context.Context, string) (*resource.Entry, error) {
	return nil, nil
}

func (u *UnavailableDatabase) GetEntries(context.Context, []string) (map[string]*resource.Entry, error) {
	return map[string]*resource.Entry{}, nil
}

func (u *UnavailableDatabase) UpsertMetadata(_ context.Context, hash string, _ resource.Metadata, _, _ []string) error {
	return u.drop("upsert_metadata", "hash", hash)
}

func (u *UnavailableDatabase) UpdateEntries(_ context.Context, updates []resource.Update) error {
	return u.drop("update_entries", "count", len(updates))
}

func (u *UnavailableDatabase) HashesByURIs(context.Context, []string) ([]string, error) {
	return nil, nil
}

func (u *UnavailableDatabase) HashesByURIPrefix(context.Context, string) ([]string, error) {
	return nil, nil
}

func (u *UnavailableDatabase) SweepOrphans(context.Context) (int64, error) {
	return 0, u.drop("sweep_orphans")
}

func (u *UnavailableDatabase) Close() error { return nil }

var _ resource.Store = (*UnavailableDatabase)(nil)
