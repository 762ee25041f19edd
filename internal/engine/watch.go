package engine

import (
	"context"

	"resdex/internal/resource"
	"resdex/internal/watch"
)

// Watch starts a primary watcher over dir for domain. The caller owns the
// returned watcher and must Dispose it.
func (e *Engine) Watch(ctx context.Context, dir string, domain resource.Domain, opts watch.Options) (*watch.Watcher, error) {
	w, err := watch.New(e, dir, domain, opts)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// WatchSecondary mirrors dir into the primary directory of domain.
func (e *Engine) WatchSecondary(ctx context.Context, dir string, domain resource.Domain, opts watch.Options) (*watch.Secondary, error) {
	s, err := watch.NewSecondary(e, dir, domain, opts)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// The methods below let watchers feed the engine.

func (e *Engine) Snapshots() resource.SnapshotStore { return e.store }

func (e *Engine) Entries(ctx context.Context, hashes []string) (map[string]*resource.Entry, error) {
	return e.entries(ctx, hashes)
}

func (e *Engine) Emit(res *resource.Resource) { e.parsed.emit(res) }

func (e *Engine) Revalidated(ctx context.Context, domain resource.Domain) {
	e.markReady(domain)
	if !e.orphanGC {
		return
	}
	if _, err := e.SweepOrphans(ctx); err != nil {
		e.logger.Warn("orphan sweep failed", "domain", domain, "error", err)
	}
}

// ParsedWithoutLoader reports whether this engine already parsed hash in the
// mods domain and found no loader.
func (e *Engine) ParsedWithoutLoader(hash string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.noLoader[hash]
	return ok
}

func (e *Engine) markParsedWithoutLoader(hash string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.noLoader[hash] = struct{}{}
}

func (e *Engine) Hash(ctx context.Context, file *resource.FileDescriptor) (string, error) {
	hash, _, err := e.hasher.HashAndClassify(ctx, file.Path, file.Size, file.IsDirectory)
	return hash, err
}

var _ watch.Host = (*Engine)(nil)
