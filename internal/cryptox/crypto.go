// Package cryptox computes content identifiers for files.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the SHA-256 digest of b as 64 lowercase hex characters.
//
// The result depends on the bytes only, never on the path or mtime they came
// from, so a renamed or copied file maps to the same identifier.
func ContentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
