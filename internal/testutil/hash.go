package testutil

import (
	"crypto/sha1"
	"encoding/hex"
)

// SHA1Hex returns the sha1 of data as a lowercase hex string, the content
// hash format used throughout the index.
func SHA1Hex(data []byte) string {
	h := sha1.Sum(data)
	return hex.EncodeToString(h[:])
}
