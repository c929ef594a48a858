package util

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Identifier Helpers
// --------------------------------------------------------------------------

// GenerateSeed creates a random uint64, used for seeding hash distributions
// and building process-unique owner identifiers.
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Last-resort fallback on the current time
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// RandomID returns a short hex identifier with the given prefix, e.g.
// "owner-9f3c21ab04d1e7b2". Used for lock owners and ad-hoc session names.
func RandomID(prefix string) string {
	return fmt.Sprintf("%s-%016x", prefix, GenerateSeed())
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// HashString generates a hash value for a string with a seed.
// This function uses the FNV-1a hash algorithm, which is fast and has good
// distribution; the seed keeps distributions independent between instances.
func HashString(s string, seed uint64) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}
