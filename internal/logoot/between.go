package logoot

// Rand is the minimal randomness source between() needs to break ties
// when no siteId is supplied. *math/rand.Rand satisfies it directly; a
// caller wanting cross-replica-deterministic tests can inject a fixed
// source instead (spec.md §9's "injectable randomness" design note).
type Rand interface {
	Int63n(n int64) int64
}

// openWindow bounds how far above the lower boundary a new integer may
// be chosen when the upper boundary is unconstrained (a nil upper tag,
// or after descending past the shared prefix). Keeping it bounded keeps
// identifiers from growing without reason; amortized identifier growth
// stays logarithmic in the number of inserts at a single position
// because repeated descents only add one position per collision.
const openWindow = 1 << 16

// Between returns a new ID strictly greater than a and strictly less
// than b. A nil a denotes the virtual minimum; a nil b denotes the
// virtual maximum. If site is empty, ties across concurrent replicas
// are broken by rng alone (a weak but adequate tiebreaker per spec.md
// §9); if site is non-empty it is appended to the newly minted position
// so that two replicas never collide even with the same rng draw, at
// the cost of a longer identifier.
func Between(a, b ID, site string, rng Rand) ID {
	var prefix ID
	depth := 0
	boundless := false // true once the upper bound has been relaxed to +inf

	for {
		lo := Position{N: 0, Site: ""}
		if depth < len(a) {
			lo = a[depth]
		}

		hasHi := !boundless && depth < len(b)
		var hi Position
		if hasHi {
			hi = b[depth]
		}

		if hasHi && hi.N == lo.N {
			switch {
			case hi.Site == lo.Site:
				// Identical coordinate: a genuine shared prefix, not a
				// boundary collision. Keep descending with both real
				// continuations.
				prefix = append(prefix, lo)
				depth++
				continue
			case lo.Site < hi.Site:
				// lo already sorts below hi purely on site; there is no
				// integer room at this depth, so lo becomes the shared
				// prefix and the upper bound relaxes to infinity for
				// every depth below this one.
				prefix = append(prefix, lo)
				boundless = true
				depth++
				continue
			}
			// lo.Site > hi.Site here would mean the caller's a > b;
			// between()'s precondition rules that out.
		}

		var ceiling uint64
		room := !hasHi
		if hasHi {
			ceiling = hi.N
			room = ceiling-lo.N > 1
		} else {
			ceiling = lo.N + openWindow
		}

		if room {
			span := int64(ceiling - lo.N - 1)
			n := lo.N + 1 + uint64(rng.Int63n(span))
			pos := Position{N: n}
			if site != "" {
				pos.Site = site
			}
			return append(prefix.Clone(), pos)
		}

		// Off by one: no integer fits between lo and hi at this depth.
		// Share lo as the common prefix and keep descending; the upper
		// bound is unconstrained from here since lo < hi already holds
		// at this depth.
		prefix = append(prefix, lo)
		boundless = true
		depth++
	}
}
