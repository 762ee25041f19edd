package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"resdex/internal/resource"
)

// ResolveOptions names one file to resolve. Domain is a hint; when empty it
// is taken from the file's location under the root.
type ResolveOptions struct {
	Path   string
	Domain resource.Domain
}

// Resolve probes path and returns its Resource, hashing and parsing in the
// caller's goroutine when the index has nothing valid for it. Concurrent
// resolves of the same path share one pipeline run. A nil Resource means
// the file is empty and is never indexed.
func (e *Engine) Resolve(ctx context.Context, path string, domain resource.Domain) (*resource.Resource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	v, err, _ := e.resolving.Do(abs, func() (any, error) {
		return e.index(ctx, &resource.Job{Path: abs, Domain: domain})
	})
	if err != nil {
		return nil, err
	}
	return v.(*resource.Resource), nil
}

// ResolveResources resolves every option in parallel. The result is aligned
// with opts; entries for empty files are nil.
func (e *Engine) ResolveResources(ctx context.Context, opts []ResolveOptions) ([]*resource.Resource, error) {
	out := make([]*resource.Resource, len(opts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i, opt := range opts {
		g.Go(func() error {
			res, err := e.Resolve(ctx, opt.Path, opt.Domain)
			if err != nil {
				return fmt.Errorf("resolving %s: %w", opt.Path, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
