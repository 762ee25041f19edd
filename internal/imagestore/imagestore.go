// Package imagestore keeps icon bytes extracted from resources, addressed by
// the sha1 of their content.
package imagestore

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Scheme prefixes every reference handed out by a store.
const Scheme = "image://"

// ErrNotFound is returned for references the store does not hold.
var ErrNotFound = errors.New("image not found")

// Ref returns the reference for data.
func Ref(data []byte) string {
	sum := sha1.Sum(data)
	return Scheme + hex.EncodeToString(sum[:])
}

// parseRef extracts the content hash from ref.
func parseRef(ref string) (string, error) {
	hash, ok := strings.CutPrefix(ref, Scheme)
	if !ok || len(hash) != 2*sha1.Size {
		return "", fmt.Errorf("invalid image reference %q", ref)
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", ref, err)
	}
	return hash, nil
}
