package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	rfs "resdex/internal/fs"
	"resdex/internal/resource"
)

// ImportOptions describes one file to bring into the managed root. Metadata,
// URIs and Icons are attached to the content on top of whatever the parser
// finds.
type ImportOptions struct {
	Path     string
	Domain   resource.Domain
	Metadata *resource.Metadata
	URIs     []string
	Icons    []string
	// Move renames the source instead of linking it when it already sits in
	// the destination directory.
	Move bool
}

// ImportResources resolves each file and persists it under its domain
// directory. Files that are empty, directories, or already stored are
// returned as resolved. Files that fail to persist are logged and left out.
func (e *Engine) ImportResources(ctx context.Context, opts []ImportOptions) ([]*resource.Resource, error) {
	resolveOpts := make([]ResolveOptions, len(opts))
	for i, o := range opts {
		resolveOpts[i] = ResolveOptions{Path: o.Path, Domain: o.Domain}
	}
	resolved, err := e.ResolveResources(ctx, resolveOpts)
	if err != nil {
		return nil, err
	}

	out := make([]*resource.Resource, len(opts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i, res := range resolved {
		if res == nil {
			continue
		}
		g.Go(func() error {
			imported, err := e.importOne(gctx, res, opts[i])
			if err != nil {
				e.logger.Error("import failed", "path", res.Path, "error", err)
				return nil
			}
			out[i] = imported
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]*resource.Resource, 0, len(out))
	for _, r := range out {
		if r != nil {
			result = append(result, r)
		}
	}
	return result, nil
}

func (e *Engine) importOne(ctx context.Context, res *resource.Resource, opt ImportOptions) (*resource.Resource, error) {
	if opt.Metadata != nil || len(opt.URIs) > 0 || len(opt.Icons) > 0 {
		var meta resource.Metadata
		if opt.Metadata != nil {
			meta = *opt.Metadata
		}
		if err := e.store.UpsertMetadata(ctx, res.Hash, meta, opt.URIs, opt.Icons); err != nil {
			return nil, fmt.Errorf("attaching metadata: %w", err)
		}
		e.cache.Remove(res.Hash)
		entry, err := e.entry(ctx, res.Hash)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			res = resource.FromFile(&resource.FileDescriptor{
				Path:        res.Path,
				FileName:    res.FileName,
				Size:        res.Size,
				Mtime:       res.Mtime,
				Ino:         res.Ino,
				IsDirectory: res.IsDirectory,
			}, res.Domain, res.Hash, res.Kind, res.StoredPath, entry)
		}
	}

	if res.IsDirectory || res.StoredPath != "" {
		return res, nil
	}

	out := *res
	if out.Domain == "" || out.Domain == resource.DomainUnclassified {
		out.Domain = resource.ResolveDomain(out.Metadata)
	}
	storedPath, linked, err := e.Persist(ctx, &out, opt.Move)
	if err != nil {
		return nil, err
	}
	out.StoredPath = storedPath
	e.logger.Info("persisted resource", "path", res.Path, "stored", storedPath, "linked", linked)
	return &out, nil
}

// Persist places res inside its domain directory under the first free name
// of the naming chain and records the snapshot. It returns the stored path
// and whether the file was hard linked.
func (e *Engine) Persist(ctx context.Context, res *resource.Resource, move bool) (string, bool, error) {
	dir := filepath.Join(e.root, string(res.Domain))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", false, fmt.Errorf("creating domain directory: %w", err)
	}

	for _, name := range e.candidateNames(res.FileName, res.Hash) {
		domainedPath := resource.JoinDomained(res.Domain, name)
		existing, err := e.store.GetSnapshot(ctx, domainedPath)
		if err != nil {
			return "", false, fmt.Errorf("checking %s: %w", domainedPath, err)
		}
		dest := filepath.Join(dir, name)
		if existing != nil {
			if existing.Hash == res.Hash && exists(dest) {
				return dest, false, nil
			}
			continue
		}

		placed, err := e.claim(ctx, dest, domainedPath, res.Hash)
		if err != nil {
			return "", false, err
		}
		if placed {
			return dest, false, nil
		}

		how, err := rfs.Place(res.Path, dest, move)
		if err != nil {
			return "", false, err
		}
		if err := e.recordStored(ctx, dest, domainedPath, res.Hash, res.Kind); err != nil {
			return "", false, err
		}
		return dest, how == rfs.PlacedByLink, nil
	}
	// The last candidate carries a random suffix, so this is only reached
	// when every name is taken by a snapshot.
	return "", false, fmt.Errorf("no free name for %s in %s", res.FileName, res.Domain)
}

// claim handles a file already on disk at dest that the snapshot store does
// not know about. Matching content is adopted in place; different content is
// removed so the caller can place the new file. It reports whether dest now
// holds the content.
func (e *Engine) claim(ctx context.Context, dest, domainedPath, hash string) (bool, error) {
	info, err := os.Stat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", dest, err)
	}

	file := rfs.Describe(dest, info)
	existing, kind, err := e.hasher.HashAndClassify(ctx, dest, file.Size, file.IsDirectory)
	if err != nil {
		return false, fmt.Errorf("hashing %s: %w", dest, err)
	}
	if existing == hash {
		if err := e.store.UpsertSnapshot(ctx, resource.TakeSnapshot(domainedPath, file, existing, kind)); err != nil {
			return false, fmt.Errorf("repairing snapshot: %w", err)
		}
		e.logger.Info("repaired snapshot", "path", dest)
		return true, nil
	}

	e.logger.Warn("removing stale file", "path", dest, "hash", existing)
	if err := rfs.Remove(dest); err != nil {
		return false, err
	}
	return false, nil
}

func (e *Engine) recordStored(ctx context.Context, dest, domainedPath, hash string, kind resource.FileKind) error {
	file, err := e.prober.Probe(dest)
	if err != nil {
		return fmt.Errorf("probing stored file: %w", err)
	}
	if err := e.store.UpsertSnapshot(ctx, resource.TakeSnapshot(domainedPath, file, hash, kind)); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// candidateNames is the collision chain: the name itself, then the name with
// a short hash, the full hash, and finally the full hash plus a random part.
func (e *Engine) candidateNames(fileName, hash string) []string {
	ext := filepath.Ext(fileName)
	stem := strings.TrimSuffix(fileName, ext)
	short := hash
	if len(short) > 6 {
		short = short[:6]
	}
	random := strings.ReplaceAll(e.idgen.New(), "-", "")
	if len(random) > 8 {
		random = random[:8]
	}
	return []string{
		fileName,
		stem + "-" + short + ext,
		stem + "-" + hash + ext,
		stem + "-" + hash + "-" + random + ext,
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
