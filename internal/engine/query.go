package engine

import (
	"context"
	"fmt"

	"resdex/internal/resource"
)

// GetResources lists the resources stored in domain.
func (e *Engine) GetResources(ctx context.Context, domain resource.Domain, page resource.Page) ([]*resource.Resource, error) {
	snaps, err := e.store.ListSnapshots(ctx, domain.Prefix(), page)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", domain, err)
	}
	return e.assemble(ctx, snaps)
}

// GetResourcesByKeyword lists resources in domain whose file name or display
// name contains keyword.
func (e *Engine) GetResourcesByKeyword(ctx context.Context, domain resource.Domain, keyword string, page resource.Page) ([]*resource.Resource, error) {
	snaps, err := e.store.SearchSnapshots(ctx, domain.Prefix(), keyword, page)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", domain, err)
	}
	return e.assemble(ctx, snaps)
}

// GetResourcesByHashes returns one resource per hash, aligned with hashes.
// Hashes with no stored file yield nil.
func (e *Engine) GetResourcesByHashes(ctx context.Context, hashes []string) ([]*resource.Resource, error) {
	snaps, err := e.store.GetSnapshotsByHashes(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}
	first := make(map[string]*resource.Snapshot, len(snaps))
	for _, s := range snaps {
		if _, ok := first[s.Hash]; !ok {
			first[s.Hash] = s
		}
	}
	picked := make([]*resource.Snapshot, 0, len(first))
	for _, s := range first {
		picked = append(picked, s)
	}
	assembled, err := e.assemble(ctx, picked)
	if err != nil {
		return nil, err
	}
	byHash := make(map[string]*resource.Resource, len(assembled))
	for _, r := range assembled {
		byHash[r.Hash] = r
	}

	out := make([]*resource.Resource, len(hashes))
	for i, h := range hashes {
		out[i] = byHash[h]
	}
	return out, nil
}

// GetResourceByHash returns a stored resource with the given content hash,
// or nil. The hash of empty content never resolves.
func (e *Engine) GetResourceByHash(ctx context.Context, hash string) (*resource.Resource, error) {
	if hash == resource.EmptyHash {
		return nil, nil
	}
	out, err := e.GetResourcesByHashes(ctx, []string{hash})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// GetResourceByInode returns the stored resource with inode ino, or nil.
func (e *Engine) GetResourceByInode(ctx context.Context, ino uint64) (*resource.Resource, error) {
	snap, err := e.store.GetSnapshotByInode(ctx, ino)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	if snap == nil {
		return nil, nil
	}
	out, err := e.assemble(ctx, []*resource.Snapshot{snap})
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

// GetResourcesByURI returns every stored resource carrying any of uris.
func (e *Engine) GetResourcesByURI(ctx context.Context, uris ...string) ([]*resource.Resource, error) {
	hashes, err := e.store.HashesByURIs(ctx, uris)
	if err != nil {
		return nil, fmt.Errorf("looking up uris: %w", err)
	}
	return e.byHashes(ctx, hashes)
}

// GetResourcesByURIPrefix returns every stored resource with a uri starting
// with prefix.
func (e *Engine) GetResourcesByURIPrefix(ctx context.Context, prefix string) ([]*resource.Resource, error) {
	hashes, err := e.store.HashesByURIPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("looking up uri prefix: %w", err)
	}
	return e.byHashes(ctx, hashes)
}

func (e *Engine) byHashes(ctx context.Context, hashes []string) ([]*resource.Resource, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	snaps, err := e.store.GetSnapshotsByHashes(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}
	return e.assemble(ctx, snaps)
}

// assemble joins snapshots with their entries. Snapshots of empty content
// are dropped.
func (e *Engine) assemble(ctx context.Context, snaps []*resource.Snapshot) ([]*resource.Resource, error) {
	hashes := make([]string, 0, len(snaps))
	seen := make(map[string]bool, len(snaps))
	for _, s := range snaps {
		if !seen[s.Hash] {
			seen[s.Hash] = true
			hashes = append(hashes, s.Hash)
		}
	}
	entries, err := e.entries(ctx, hashes)
	if err != nil {
		return nil, err
	}

	out := make([]*resource.Resource, 0, len(snaps))
	for _, s := range snaps {
		if s.Hash == resource.EmptyHash {
			continue
		}
		out = append(out, resource.FromSnapshot(e.root, s, entries[s.Hash]))
	}
	return out, nil
}
