// Package hash provides content digests used to key archived pages.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 implements crawler.Hasher.
type SHA256 struct{}

// NewSHA256 returns a SHA-256 hasher.
func NewSHA256() SHA256 {
	return SHA256{}
}

// Hash returns the hex digest of data.
func (SHA256) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
