// Package checksum derives content validators for memo reads.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of content.
func Sum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// ETag returns a strong HTTP entity tag for content.
func ETag(content string) string {
	return `"` + Sum(content) + `"`
}
