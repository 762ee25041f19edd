package engine

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"resdex/internal/export"
	"resdex/internal/resource"
)

const exportConcurrency = 4

// ExportResources copies every stored file holding one of hashes to target
// and returns the exported names. Directories are skipped.
func (e *Engine) ExportResources(ctx context.Context, hashes []string, target export.Target) ([]string, error) {
	if target == nil {
		return nil, export.ErrNoTarget
	}
	snaps, err := e.store.GetSnapshotsByHashes(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}

	names := make([]string, len(snaps))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(exportConcurrency)
	for i, s := range snaps {
		if s.Kind == resource.KindDirectory {
			e.logger.Warn("skipping directory export", "path", s.DomainedPath)
			continue
		}
		g.Go(func() error {
			if err := e.exportOne(ctx, s, target); err != nil {
				return err
			}
			names[i] = s.Name()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	e.logger.Info("exported resources", "count", len(out), "target", target.Describe())
	return out, nil
}

func (e *Engine) exportOne(ctx context.Context, s *resource.Snapshot, target export.Target) error {
	f, err := os.Open(resource.AbsPath(e.root, s.DomainedPath))
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.DomainedPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", s.DomainedPath, err)
	}
	return target.Put(ctx, s.Name(), f, info.Size())
}
