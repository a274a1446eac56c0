// Package digest fingerprints fetched content for change detection.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Algorithm names the digest in storage paths and logs.
const Algorithm = "sha256"

// Sum returns the lowercase hex SHA-256 of content.
// The same function produces both the stored baseline and fresh digests.
func Sum(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}
