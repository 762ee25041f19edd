package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	rfs "resdex/internal/fs"
	"resdex/internal/resource"
)

// UpdateResources attaches names, sources, tags, uris and icons to existing
// content. Subscribers registered with OnResourceUpdated are notified after
// the write commits.
func (e *Engine) UpdateResources(ctx context.Context, updates []resource.Update) error {
	if len(updates) == 0 {
		return nil
	}
	if err := e.store.UpdateEntries(ctx, updates); err != nil {
		return fmt.Errorf("updating resources: %w", err)
	}
	for _, u := range updates {
		e.cache.Remove(u.Hash)
	}
	e.updated.emit(updates)
	return nil
}

// RemoveResources deletes every stored file holding one of hashes and drops
// their snapshots. Metadata rows are kept.
func (e *Engine) RemoveResources(ctx context.Context, hashes []string) error {
	snaps, err := e.store.GetSnapshotsByHashes(ctx, hashes)
	if err != nil {
		return fmt.Errorf("loading snapshots: %w", err)
	}
	var errs []error
	for _, s := range snaps {
		if err := rfs.Remove(resource.AbsPath(e.root, s.DomainedPath)); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := e.RemovePath(ctx, s.DomainedPath); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemovePath drops the snapshot at domainedPath and notifies removal
// subscribers. Missing snapshots are not an error.
func (e *Engine) RemovePath(ctx context.Context, domainedPath string) error {
	snap, err := e.store.GetSnapshot(ctx, domainedPath)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	if err := e.store.RemoveSnapshot(ctx, domainedPath); err != nil {
		return fmt.Errorf("removing snapshot %s: %w", domainedPath, err)
	}
	removal := Removal{
		Domain:       resource.DomainOf(domainedPath),
		Path:         resource.AbsPath(e.root, domainedPath),
		DomainedPath: domainedPath,
	}
	if snap != nil {
		removal.Hash = snap.Hash
	}
	e.removed.emit(removal)
	return nil
}

// RemoveUnder drops every snapshot whose domained path starts with prefix in
// one statement and publishes a removal for each. It returns how many were
// removed.
func (e *Engine) RemoveUnder(ctx context.Context, prefix string) (int, error) {
	snaps, err := e.store.ListSnapshots(ctx, prefix, resource.Page{})
	if err != nil {
		return 0, fmt.Errorf("listing snapshots: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}
	if err := e.store.RemoveSnapshotsUnder(ctx, prefix); err != nil {
		return 0, fmt.Errorf("removing snapshots under %s: %w", prefix, err)
	}
	for _, snap := range snaps {
		e.removed.emit(Removal{
			Domain:       resource.DomainOf(snap.DomainedPath),
			Path:         resource.AbsPath(e.root, snap.DomainedPath),
			DomainedPath: snap.DomainedPath,
			Hash:         snap.Hash,
		})
	}
	return len(snaps), nil
}

// Touch revalidates path now. A path that no longer exists is removed from
// the index and Touch reports false.
func (e *Engine) Touch(ctx context.Context, path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("resolving path: %w", err)
	}
	file, err := e.prober.Probe(abs)
	if errors.Is(err, resource.ErrNotFound) {
		if domainedPath, ok := resource.DomainedPath(e.root, abs); ok {
			return false, e.RemovePath(ctx, domainedPath)
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, e.Enqueue(&resource.Job{Path: file.Path, File: file})
}

// SweepOrphans deletes metadata no snapshot references.
func (e *Engine) SweepOrphans(ctx context.Context) (int64, error) {
	n, err := e.store.SweepOrphans(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweeping orphans: %w", err)
	}
	if n > 0 {
		e.cache.Purge()
		e.logger.Info("swept orphaned metadata", "count", n)
	}
	return n, nil
}
