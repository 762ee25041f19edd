package engine

import (
	"context"
	"fmt"

	"resdex/internal/resource"
)

// runJob is the work queue executor. Results of cancelled jobs are dropped.
func (e *Engine) runJob(ctx context.Context, job *resource.Job) error {
	res, err := e.index(ctx, job)
	if err != nil {
		return err
	}
	if res != nil && !job.IsCancelled() {
		e.parsed.emit(res)
	}
	return nil
}

// index brings the snapshot and metadata for job.Path up to date and
// assembles the Resource. It returns nil without error for files that are
// never indexed (empty content) and for cancelled jobs.
func (e *Engine) index(ctx context.Context, job *resource.Job) (*resource.Resource, error) {
	file, err := e.currentFile(job)
	if err != nil {
		return nil, err
	}
	if !file.IsDirectory && file.Size == 0 {
		e.logger.Debug("skipping empty file", "path", file.Path)
		return nil, nil
	}

	domainedPath, stored := resource.DomainedPath(e.root, file.Path)
	snap, fresh, err := e.snapshotFor(ctx, file, domainedPath, stored, job.Snapshot)
	if err != nil {
		return nil, err
	}
	if snap.Hash == resource.EmptyHash {
		e.logger.Debug("skipping empty content", "path", file.Path)
		return nil, nil
	}

	// A file outside the root whose inode matches a stored snapshot is a
	// hard link to that stored file.
	storedPath := ""
	switch {
	case stored:
		storedPath = file.Path
	case snap.DomainedPath != "":
		storedPath = resource.AbsPath(e.root, snap.DomainedPath)
	}
	domain := job.Domain
	if domain == "" && snap.DomainedPath != "" {
		domain = resource.DomainOf(snap.DomainedPath)
	}
	if domain == "" {
		domain = resource.DomainUnclassified
	}

	if job.IsCancelled() {
		return nil, nil
	}
	if stored && fresh {
		if err := e.store.UpsertSnapshot(ctx, snap); err != nil {
			return nil, fmt.Errorf("saving snapshot: %w", err)
		}
	}

	entry, err := e.entry(ctx, snap.Hash)
	if err != nil {
		return nil, err
	}

	modFile := domain == resource.DomainMods && !file.IsDirectory
	needParse := entry == nil ||
		(modFile && !entry.Metadata.HasLoader() && !e.ParsedWithoutLoader(snap.Hash))

	var meta resource.Metadata
	if job.Metadata != nil {
		meta = *job.Metadata
	}
	uris := job.URIs
	icons := job.Icons
	if needParse {
		parsed := e.parse(ctx, file.Path, snap.Kind, domain)
		meta = resource.Merge(meta, parsed.Metadata)
		uris = append(append([]string(nil), uris...), parsed.URIs...)
		icons = append(append([]string(nil), icons...), e.storeIcons(ctx, file.Path, parsed.Icons)...)
		if modFile && !meta.HasLoader() {
			e.markParsedWithoutLoader(snap.Hash)
		}
	}

	if job.IsCancelled() {
		return nil, nil
	}
	if needParse || job.Metadata != nil || len(uris) > 0 || len(icons) > 0 {
		if err := e.store.UpsertMetadata(ctx, snap.Hash, meta, uris, icons); err != nil {
			return nil, fmt.Errorf("saving metadata: %w", err)
		}
		e.cache.Remove(snap.Hash)
		if entry, err = e.entry(ctx, snap.Hash); err != nil {
			return nil, err
		}
		if entry == nil {
			// The store dropped the write; still report what was parsed.
			entry = &resource.Entry{Hash: snap.Hash, Metadata: meta, URIs: uris, Icons: icons}
		}
	}

	return resource.FromFile(file, domain, snap.Hash, snap.Kind, storedPath, entry), nil
}

// currentFile re-probes the job's path. The descriptor a job was pushed with
// is kept only while it still matches the file on disk; a file that grew or
// was replaced since then is hashed with its current size.
func (e *Engine) currentFile(job *resource.Job) (*resource.FileDescriptor, error) {
	path := job.Path
	if path == "" && job.File != nil {
		path = job.File.Path
	}
	file, err := e.prober.Probe(path)
	if err != nil {
		return nil, err
	}
	if job.File != nil && job.File.SameState(file) {
		return job.File, nil
	}
	if job.File != nil {
		e.logger.Debug("file changed since it was queued", "path", path)
	}
	return file, nil
}

// snapshotFor returns a snapshot valid for file, hashing only when neither
// the hint nor the store has one. fresh reports whether it must be saved.
func (e *Engine) snapshotFor(ctx context.Context, file *resource.FileDescriptor, domainedPath string, stored bool, hint *resource.Snapshot) (*resource.Snapshot, bool, error) {
	snap := hint
	if !resource.IsValid(file, snap) {
		var err error
		if stored {
			snap, err = e.store.GetSnapshot(ctx, domainedPath)
		} else {
			snap, err = e.store.GetSnapshotByInode(ctx, file.Ino)
		}
		if err != nil {
			return nil, false, fmt.Errorf("loading snapshot: %w", err)
		}
	}
	if resource.IsValid(file, snap) {
		if stored && snap.DomainedPath != domainedPath {
			return snap.Rebase(domainedPath), true, nil
		}
		return snap, false, nil
	}

	hash, kind, err := e.hasher.HashAndClassify(ctx, file.Path, file.Size, file.IsDirectory)
	if err != nil {
		return nil, false, fmt.Errorf("hashing %s: %w", file.Path, err)
	}
	return resource.TakeSnapshot(domainedPath, file, hash, kind), true, nil
}

// parse never fails: a parser error leaves the file indexed without metadata.
func (e *Engine) parse(ctx context.Context, path string, kind resource.FileKind, domain resource.Domain) *resource.ParseResult {
	result, err := e.parser.Parse(ctx, path, kind, domain)
	if err != nil {
		e.logger.Warn("parse failed", "path", path, "domain", domain, "error", err)
		return &resource.ParseResult{}
	}
	if result == nil {
		return &resource.ParseResult{}
	}
	if result.Metadata.Name == "" {
		result.Metadata.Name = result.Name
	}
	return result
}

func (e *Engine) storeIcons(ctx context.Context, path string, icons [][]byte) []string {
	if e.images == nil || len(icons) == 0 {
		return nil
	}
	refs := make([]string, 0, len(icons))
	for _, data := range icons {
		ref, err := e.images.AddImage(ctx, data)
		if err != nil {
			e.logger.Warn("storing icon failed", "path", path, "error", err)
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// entry reads one entry through the cache.
func (e *Engine) entry(ctx context.Context, hash string) (*resource.Entry, error) {
	entries, err := e.entries(ctx, []string{hash})
	if err != nil {
		return nil, err
	}
	return entries[hash], nil
}

// entries reads entries through the cache. Missing hashes are absent from
// the map and are not cached.
func (e *Engine) entries(ctx context.Context, hashes []string) (map[string]*resource.Entry, error) {
	out := make(map[string]*resource.Entry, len(hashes))
	var missing []string
	for _, h := range hashes {
		if entry, ok := e.cache.Get(h); ok {
			out[h] = entry
			continue
		}
		missing = append(missing, h)
	}
	if len(missing) == 0 {
		return out, nil
	}
	loaded, err := e.store.GetEntries(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("loading metadata: %w", err)
	}
	for h, entry := range loaded {
		e.cache.Add(h, entry)
		out[h] = entry
	}
	return out, nil
}
