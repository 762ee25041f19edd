package resource

import "errors"

var (
	// ErrNotFound is returned by a Prober when the path does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrEmptyFile marks zero-length regular files, which are never indexed.
	ErrEmptyFile = errors.New("empty file")

	// ErrNoInstaller is returned by Install when no installer is registered
	// for the resource's domain.
	ErrNoInstaller = errors.New("no installer registered for domain")
)
