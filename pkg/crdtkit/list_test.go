package crdtkit

import (
	"math/rand"
	"testing"
	"time"

	"github.com/amaydixit11/mview/internal/logoot"
)

func id(n uint64, site string) logoot.ID {
	return logoot.ID{{N: n, Site: site}}
}

// Scenario 5 (spec §8): between() density with distinct sites.
func TestListBetweenDensity(t *testing.T) {
	l := NewList[string](Options{})
	a := id(5, "s1")
	b := id(6, "s2")

	tag := l.Between(a, b, "s3")
	if !a.Less(tag) || !tag.Less(b) {
		t.Fatalf("Between(%v, %v) = %v, want strictly between", a, b, tag)
	}
	if len(tag) < 2 {
		t.Fatalf("len(tag) = %d, want >= 2", len(tag))
	}
}

func TestListInsertAndOrder(t *testing.T) {
	l := NewList[string](Options{})
	mid := l.Between(nil, nil, "")
	left := l.Between(nil, mid, "")
	right := l.Between(mid, nil, "")

	l.Insert(mid, "mid")
	l.Insert(right, "right")
	l.Insert(left, "left")

	got := l.ToObject()
	want := []string{"left", "mid", "right"}
	if len(got) != len(want) {
		t.Fatalf("ToObject() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ToObject()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// Invariant 4 (spec §8): insert and remove are idempotent.
func TestListIdempotence(t *testing.T) {
	l := NewList[string](Options{})
	tag := l.Between(nil, nil, "")

	l.Insert(tag, "a")
	l.Insert(tag, "a")
	if l.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 after duplicate insert", l.Count())
	}

	l.Remove(tag)
	l.Remove(tag)
	if l.Count() != 0 {
		t.Fatalf("Count() = %d, want 0 after duplicate remove", l.Count())
	}
}

func TestListRemoveBlocksLateInsert(t *testing.T) {
	l := NewList[string](Options{})
	tag := l.Between(nil, nil, "")

	l.Insert(tag, "a")
	l.Remove(tag)
	l.Insert(tag, "b")

	if l.Count() != 0 {
		t.Fatalf("Count() = %d, want 0: tombstoned tag must reject a late insert", l.Count())
	}
}

func TestListTagsOutOfRange(t *testing.T) {
	l := NewList[string](Options{})
	l.Insert(l.Between(nil, nil, ""), "a")

	if tag := l.Tags(-1); tag != nil {
		t.Fatal("Tags(-1) should return nil")
	}
	if tag := l.Tags(5); tag != nil {
		t.Fatal("Tags(5) should return nil when out of range")
	}
}

func TestListDumpLoadRoundTrip(t *testing.T) {
	l := NewList[string](Options{})
	a := l.Between(nil, nil, "")
	b := l.Between(a, nil, "")
	l.Insert(a, "a")
	l.Insert(b, "b")
	l.Remove(a)

	dump, err := l.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	loaded := NewList[string](Options{})
	if err := loaded.Load(dump); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := loaded.ToObject(), l.ToObject(); len(got) != len(want) || got[0] != want[0] {
		t.Fatalf("loaded ToObject() = %v, want %v", got, want)
	}

	c := loaded.Between(b, nil, "")
	loaded.Insert(c, "c")
	l.Insert(c, "c")
	if got, want := loaded.ToObject(), l.ToObject(); len(got) != len(want) {
		t.Fatalf("post-load operation diverged: %v vs %v", got, want)
	}
}

// TestListMergeDumpUnionsDisjointInserts exercises anti-entropy
// convergence: two replicas that each inserted a different item at
// the same position should both hold both items, ordered, after a
// two-way MergeDump.
func TestListMergeDumpUnionsDisjointInserts(t *testing.T) {
	l1 := NewList[string](Options{})
	tagA := l1.Between(nil, nil, "site1")
	l1.Insert(tagA, "a")

	l2 := NewList[string](Options{})
	tagB := l2.Between(nil, nil, "site2")
	l2.Insert(tagB, "b")

	d1, _ := l1.Dump()
	d2, _ := l2.Dump()

	if err := l1.MergeDump(d2); err != nil {
		t.Fatalf("MergeDump: %v", err)
	}
	if err := l2.MergeDump(d1); err != nil {
		t.Fatalf("MergeDump: %v", err)
	}

	if l1.Count() != 2 || l2.Count() != 2 {
		t.Fatalf("expected both entries after merge, got l1=%d l2=%d", l1.Count(), l2.Count())
	}
	if got1, got2 := l1.ToObject(), l2.ToObject(); len(got1) != len(got2) || got1[0] != got2[0] || got1[1] != got2[1] {
		t.Fatalf("replicas diverged after merge: %v vs %v", got1, got2)
	}
}

// TestListMergeDumpRespectsLocalRemove ensures a local remove isn't
// resurrected by merging in a remote dump that still carries the live
// entry under the same tag.
func TestListMergeDumpRespectsLocalRemove(t *testing.T) {
	l1 := NewList[string](Options{})
	tag := l1.Between(nil, nil, "")
	l1.Insert(tag, "a")
	l1.Remove(tag)

	l2 := NewList[string](Options{})
	l2.Insert(tag, "a")

	d2, _ := l2.Dump()
	if err := l1.MergeDump(d2); err != nil {
		t.Fatalf("MergeDump: %v", err)
	}
	if l1.Count() != 0 {
		t.Fatalf("Count() = %d, want 0: locally removed tag must reject a remote insert", l1.Count())
	}
}

// TestListDumpLoadSurvivesNonUTF8TombstoneKeys guards against a specific
// corruption: a tombstone's key is the raw Logoot byte encoding of its
// tag, which is not valid UTF-8 in general (a big-endian position like
// 200 or 65535 encodes a byte of 0x80 or above that doesn't form a
// valid rune with its neighbours).
// Carrying that key through encoding/json as a bare string would let
// json.Marshal replace the offending bytes with U+FFFD, so the
// tombstone would never again match idKey(tag) and a tombstoned tag
// would resurrect itself across a dump/load cycle.
func TestListDumpLoadSurvivesNonUTF8TombstoneKeys(t *testing.T) {
	for _, n := range []uint64{200, 500, 40000, 65535} {
		tag := id(n, "")
		l := NewList[string](Options{})
		l.Insert(tag, "a")
		l.Remove(tag)

		dump, err := l.Dump()
		if err != nil {
			t.Fatalf("n=%d: Dump: %v", n, err)
		}

		loaded := NewList[string](Options{})
		if err := loaded.Load(dump); err != nil {
			t.Fatalf("n=%d: Load: %v", n, err)
		}
		loaded.Insert(tag, "b")
		if loaded.Count() != 0 {
			t.Fatalf("n=%d: Count() = %d, want 0: tombstone must survive dump/load so a late insert is still rejected", n, loaded.Count())
		}

		merged := NewList[string](Options{})
		merged.Insert(tag, "a")
		if err := merged.MergeDump(dump); err != nil {
			t.Fatalf("n=%d: MergeDump: %v", n, err)
		}
		if merged.Count() != 0 {
			t.Fatalf("n=%d: Count() = %d, want 0: MergeDump must evict a locally-live entry whose tag the remote tombstoned", n, merged.Count())
		}
	}
}

// TestListBetweenRandomPairsStayOrdered is a property test over random
// identifier pairs, exercising invariant 3 (spec §8): Between always
// lands strictly inside its bounds.
func TestListBetweenRandomPairsStayOrdered(t *testing.T) {
	seed := time.Now().UnixNano()
	rng := rand.New(rand.NewSource(seed))
	t.Logf("seed: %d", seed)

	l := NewList[string](Options{Rand: rng})
	var cur logoot.ID
	for i := 0; i < 100; i++ {
		next := l.Between(cur, nil, "")
		if !cur.Less(next) {
			t.Fatalf("iteration %d: Between did not advance past %v (got %v)", i, cur, next)
		}
		cur = next
	}
}
