// Package auth checks operator API keys.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/go-faster/errors"
)

// Header carries the operator API key.
const Header = "api_key"

// Keys holds the SHA-256 hashes of the accepted operator keys. Only hashes
// are configured, so the keys themselves never appear in config files.
type Keys struct {
	hashes [][]byte
}

// HashKey returns the hex SHA-256 of key, the form NewKeys accepts.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// NewKeys parses hex-encoded SHA-256 hashes. Blank entries are ignored.
func NewKeys(hexHashes ...string) (*Keys, error) {
	k := &Keys{}
	for _, h := range hexHashes {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		b, err := hex.DecodeString(h)
		if err != nil {
			return nil, errors.Wrapf(err, "decode key hash %q", h)
		}
		if len(b) != sha256.Size {
			return nil, errors.Errorf("key hash %q is %d bytes, want %d", h, len(b), sha256.Size)
		}
		k.hashes = append(k.hashes, b)
	}
	return k, nil
}

// Empty reports whether no key is configured.
func (k *Keys) Empty() bool {
	return len(k.hashes) == 0
}

// Valid reports whether key matches a configured hash. Every hash is
// compared in constant time.
func (k *Keys) Valid(key string) bool {
	if key == "" {
		return false
	}
	sum := sha256.Sum256([]byte(key))
	ok := 0
	for _, h := range k.hashes {
		ok |= subtle.ConstantTimeCompare(sum[:], h)
	}
	return ok == 1
}
