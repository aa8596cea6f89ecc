// Package keys derives the 64-bit object IDs the index operates on.
//
// The index treats its key as an already-uniform hash: it splits the low
// bits into a bucket index and the top 16 bits into a secondary hash
// without rehashing. Callers with external identifiers therefore hash them
// through this package first.
package keys

import (
	"github.com/cespare/xxhash/v2"
)

// OfString hashes an external string identifier into an object ID.
func OfString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// OfBytes hashes an external byte identifier into an object ID.
func OfBytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}
