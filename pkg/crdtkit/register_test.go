package crdtkit

import (
	"fmt"
	"math/rand"
	"testing"
	"time"
)

type registerUpdate struct {
	previousTags []string
	tag          string
	value        int
}

func applyRegisterUpdates(r *Register[string, int], updates []registerUpdate) {
	for _, u := range updates {
		r.Set(u.previousTags, u.tag, u.value)
	}
}

func registersEqual(a, b *Register[string, int]) bool {
	da, err := a.Dump()
	if err != nil {
		return false
	}
	db, err := b.Dump()
	if err != nil {
		return false
	}
	return string(da) == string(db)
}

// TestRegisterConvergesUnderAnyPermutation exercises the quantified
// invariant of spec §8.1: any two permutations of the same update set
// converge to equal state.
func TestRegisterConvergesUnderAnyPermutation(t *testing.T) {
	seed := time.Now().UnixNano()
	rng := rand.New(rand.NewSource(seed))
	t.Logf("seed: %d", seed)

	for i := 0; i < 50; i++ {
		updates := randomRegisterUpdates(rng, 5+rng.Intn(10))

		perm1 := shuffledCopy(rng, updates)
		perm2 := shuffledCopy(rng, updates)

		r1 := NewRegister[string, int](Options{})
		r2 := NewRegister[string, int](Options{})
		applyRegisterUpdates(r1, perm1)
		applyRegisterUpdates(r2, perm2)

		if !registersEqual(r1, r2) {
			t.Fatalf("permutation divergence at iteration %d", i)
		}
	}
}

func randomRegisterUpdates(rng *rand.Rand, n int) []registerUpdate {
	var tags []string
	updates := make([]registerUpdate, 0, n)
	for i := 0; i < n; i++ {
		tag := fmt.Sprintf("t%d", i)
		var prev []string
		if len(tags) > 0 && rng.Intn(2) == 0 {
			prev = []string{tags[rng.Intn(len(tags))]}
		}
		updates = append(updates, registerUpdate{previousTags: prev, tag: tag, value: rng.Intn(100)})
		tags = append(tags, tag)
	}
	return updates
}

func shuffledCopy(rng *rand.Rand, in []registerUpdate) []registerUpdate {
	out := make([]registerUpdate, len(in))
	copy(out, in)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Scenario 1 (spec §8): causal chain converges regardless of delivery order.
func TestRegisterCausalChain(t *testing.T) {
	r1 := NewRegister[string, int](Options{})
	r1.Set(nil, "a", 1)
	r1.Set([]string{"a"}, "b", 2)

	if tags := r1.Tags(); len(tags) != 1 || tags[0] != "b" {
		t.Fatalf("Tags() = %v, want [b]", tags)
	}
	if v, ok := r1.ToObject(); !ok || v != 2 {
		t.Fatalf("ToObject() = (%v, %v), want (2, true)", v, ok)
	}

	r2 := NewRegister[string, int](Options{})
	r2.Set([]string{"a"}, "b", 2)
	r2.Set(nil, "a", 1)

	if !registersEqual(r1, r2) {
		t.Fatal("reverse delivery order should converge to the same state")
	}
}

// Scenario 2 (spec §8): concurrent writes both survive, sorted by tag.
func TestRegisterConcurrentWrites(t *testing.T) {
	r := NewRegister[string, int](Options{})
	r.Set(nil, "a", 1)
	r.Set(nil, "b", 2)

	tags := r.Tags()
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Fatalf("Tags() = %v, want [a b]", tags)
	}
	if v, ok := r.ToObject(); !ok || v != 1 {
		t.Fatalf("ToObject() = (%v, %v), want (1, true)", v, ok)
	}
}

// Invariant 6 (spec §8): once tombstoned, a tag never resurrects.
func TestRegisterTombstoneGating(t *testing.T) {
	r := NewRegister[string, int](Options{})
	r.Set(nil, "a", 1)
	r.Set([]string{"a"}, "b", 2)

	r.Set(nil, "a", 99)
	if tags := r.Tags(); len(tags) != 1 || tags[0] != "b" {
		t.Fatalf("tombstoned tag resurrected: Tags() = %v", tags)
	}
}

func TestRegisterEmptyToObject(t *testing.T) {
	r := NewRegister[string, int](Options{})
	if _, ok := r.ToObject(); ok {
		t.Fatal("ToObject() on an empty register should report ok=false")
	}
}

func TestRegisterDumpLoadRoundTrip(t *testing.T) {
	r := NewRegister[string, int](Options{})
	r.Set(nil, "a", 1)
	r.Set([]string{"a"}, "b", 2)
	r.Set(nil, "c", 3)

	dump, err := r.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	loaded := NewRegister[string, int](Options{})
	if err := loaded.Load(dump); err != nil {
		t.Fatalf("Load: %v", err)
	}

	loaded.Set([]string{"b"}, "d", 4)
	r.Set([]string{"b"}, "d", 4)

	if !registersEqual(r, loaded) {
		t.Fatal("loaded register diverged from the original after an identical subsequent operation")
	}
}

// TestRegisterMergeDumpUnionsDisjointWrites exercises anti-entropy
// convergence: two replicas that each saw only one of two concurrent
// writes should both end up holding both after a two-way MergeDump.
func TestRegisterMergeDumpUnionsDisjointWrites(t *testing.T) {
	r1 := NewRegister[string, int](Options{})
	r1.Set(nil, "a", 1)

	r2 := NewRegister[string, int](Options{})
	r2.Set(nil, "b", 2)

	d1, err := r1.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	d2, err := r2.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	if err := r1.MergeDump(d2); err != nil {
		t.Fatalf("MergeDump: %v", err)
	}
	if err := r2.MergeDump(d1); err != nil {
		t.Fatalf("MergeDump: %v", err)
	}

	if !registersEqual(r1, r2) {
		t.Fatal("replicas should converge after exchanging merges")
	}
	tags := r1.Tags()
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Fatalf("Tags() = %v, want [a b]", tags)
	}
}

// TestRegisterMergeDumpRespectsTombstones ensures a merge doesn't
// resurrect a tag the receiving side has already superseded.
func TestRegisterMergeDumpRespectsTombstones(t *testing.T) {
	r1 := NewRegister[string, int](Options{})
	r1.Set(nil, "a", 1)
	r1.Set([]string{"a"}, "b", 2)

	stale := NewRegister[string, int](Options{})
	stale.Set(nil, "a", 1)
	staleDump, err := stale.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	if err := r1.MergeDump(staleDump); err != nil {
		t.Fatalf("MergeDump: %v", err)
	}
	if tags := r1.Tags(); len(tags) != 1 || tags[0] != "b" {
		t.Fatalf("stale merge resurrected tombstoned tag: Tags() = %v", tags)
	}
}

func TestRegisterNoTombstonesAllowsResurrection(t *testing.T) {
	r := NewRegister[string, int](Options{NoTombstones: true})
	r.Set(nil, "a", 1)
	r.Set([]string{"a"}, "b", 2)
	r.Set(nil, "a", 99)

	tags := r.Tags()
	if len(tags) != 2 {
		t.Fatalf("Tags() = %v, want 2 live tags with tombstones disabled", tags)
	}
}
