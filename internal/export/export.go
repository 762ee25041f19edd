// Package export copies indexed resources out of the managed root to a
// configured destination.
package export

import (
	"context"
	"errors"
	"io"
)

// ErrNoTarget is returned when export is requested but none is configured.
var ErrNoTarget = errors.New("no export target configured")

// Target receives exported files. size is -1 when unknown.
type Target interface {
	Put(ctx context.Context, name string, r io.Reader, size int64) error
	// Describe returns a human-readable location for log lines.
	Describe() string
}
