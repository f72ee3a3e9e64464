// Package crdtkit is the public surface of the library: four
// convergent view types (Register, Set, List, Text) sharing a tag
// algebra and a tombstone substrate. Views are passive in-memory
// objects — operations are synchronous, total, and never block; no
// view holds an internal lock (see DESIGN.md for why, a deliberate
// divergence from the teacher's per-struct sync.RWMutex).
package crdtkit

import "github.com/amaydixit11/mview/internal/logoot"

// Options configures a view at construction. The zero value enables
// tombstone tracking, matching the library's documented default.
type Options struct {
	// NoTombstones disables dead-tag tracking. A view built this way
	// never blocks a resurrected tag, and out-of-order delivery of an
	// add-before-remove pair may diverge — the caller's responsibility
	// per the library's contract.
	NoTombstones bool

	// Rand supplies the randomness List.Between uses to pick a new
	// position's integer, with or without a siteId; without one it is
	// the only tiebreaker. Nil falls back to a package-level math/rand
	// source. A
	// caller that needs cross-replica-deterministic tests injects a
	// fixed source here.
	Rand logoot.Rand
}
