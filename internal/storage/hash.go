package storage

import (
	"crypto/sha256"
	"encoding/hex"
)

// URLHashLen is the number of hex characters kept from the digest.
const URLHashLen = 16

// HashURL returns a short deterministic key for a URL. It is used for
// uniqueness and index size only.
func HashURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:])[:URLHashLen]
}
