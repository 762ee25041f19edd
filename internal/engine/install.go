package engine

import (
	"context"
	"fmt"
	"path/filepath"

	rfs "resdex/internal/fs"
	"resdex/internal/resource"
)

// Installer copies a resource into a launcher instance.
type Installer interface {
	Install(ctx context.Context, res *resource.Resource, instancePath string) error
}

// InstallerFunc adapts a function to Installer.
type InstallerFunc func(ctx context.Context, res *resource.Resource, instancePath string) error

func (f InstallerFunc) Install(ctx context.Context, res *resource.Resource, instancePath string) error {
	return f(ctx, res, instancePath)
}

// RegisterInstaller sets the installer for domain, replacing any previous one.
func (e *Engine) RegisterInstaller(domain resource.Domain, installer Installer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.installers[domain] = installer
}

// Install hands the stored resource with hash to its domain's installer.
// It fails with resource.ErrNoInstaller when none is registered.
func (e *Engine) Install(ctx context.Context, hash, instancePath string) error {
	res, err := e.GetResourceByHash(ctx, hash)
	if err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("no stored resource with hash %s", hash)
	}

	e.mu.Lock()
	installer, ok := e.installers[res.Domain]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", resource.ErrNoInstaller, res.Domain)
	}
	return installer.Install(ctx, res, instancePath)
}

// LinkInstaller places the stored file into <instance>/<domain>/, hard
// linking when possible.
var LinkInstaller = InstallerFunc(func(_ context.Context, res *resource.Resource, instancePath string) error {
	dest := filepath.Join(instancePath, string(res.Domain), res.FileName)
	if rfs.SameFile(res.StoredPath, dest) {
		return nil
	}
	if _, err := rfs.Place(res.StoredPath, dest, false); err != nil {
		return fmt.Errorf("installing %s: %w", res.FileName, err)
	}
	return nil
})
