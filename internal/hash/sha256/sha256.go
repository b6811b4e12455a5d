// Package sha256 names archived page snapshots by their SHA-256 digest.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// fullLength is the number of hex digits in a SHA-256 digest.
const fullLength = sha256.Size * 2

// Hasher implements crawler.Hasher using SHA-256. Digests are hex encoded and
// optionally cut to a prefix, which keeps archive object names short.
type Hasher struct {
	length int
}

// New returns a hasher producing the full hex digest.
func New() *Hasher {
	return &Hasher{length: fullLength}
}

// NewTruncated returns a hasher keeping the first length hex digits of each digest.
// A length outside 1..64 keeps the full digest.
func NewTruncated(length int) *Hasher {
	if length <= 0 || length > fullLength {
		length = fullLength
	}
	return &Hasher{length: length}
}

// Hash returns the (possibly truncated) hex digest of a page body.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if h.length > 0 && h.length < fullLength {
		return digest[:h.length], nil
	}
	return digest, nil
}
