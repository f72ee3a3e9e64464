// Package digest computes a compact fingerprint of a view's state for
// anti-entropy comparison: two replicas exchange digests before
// exchanging full state, and skip the exchange entirely when the
// digests match. Grounded on the teacher's EngineAdapter.StateHash
// (internal/sync/adapter.go), upgraded from crypto/sha256 to
// golang.org/x/crypto/blake2b, which the rest of the module already
// pulls in for the transport's wire authentication.
package digest

import (
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Size is the length in bytes of a Sum result.
const Size = blake2b.Size256

// Sum hashes the canonical JSON encoding of v. Callers pass a
// deterministically-ordered snapshot (sorted tag slices, not maps) so
// that two replicas holding equal state always produce equal digests.
func Sum(v any) ([Size]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return [Size]byte{}, fmt.Errorf("digest: marshal state: %w", err)
	}
	return blake2b.Sum256(data), nil
}

// MustSum is Sum for callers that already know v is marshalable, such
// as internal snapshot types built entirely from sorted slices and
// primitives. It panics on failure.
func MustSum(v any) [Size]byte {
	sum, err := Sum(v)
	if err != nil {
		panic(err)
	}
	return sum
}

// Equal reports whether two digests represent the same state.
func Equal(a, b [Size]byte) bool {
	return a == b
}
