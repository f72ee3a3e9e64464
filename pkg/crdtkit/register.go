package crdtkit

import (
	"cmp"
	"encoding/json"
	"sort"

	"github.com/amaydixit11/mview/internal/tombstone"
)

// Register is a last-writer-wins register over a causal tag DAG: each
// update names the tags it causally supersedes, so "last writer" means
// "not superseded" rather than "latest timestamp". Concurrent writes
// that name disjoint previousTags are all retained as live tags until
// a later update subsumes them. Grounded on the teacher's LWWSet
// (internal/crdt/lww.go), reworked from timestamp comparison to the
// explicit previousTags edge list.
type Register[K cmp.Ordered, V any] struct {
	live map[K]V
	dead *tombstone.Set[K]
}

// NewRegister constructs an empty register.
func NewRegister[K cmp.Ordered, V any](opts Options) *Register[K, V] {
	return &Register[K, V]{
		live: make(map[K]V),
		dead: tombstone.New[K](!opts.NoTombstones),
	}
}

// Set applies an update: tag becomes live with value, and every tag in
// previousTags is moved from live to tombstoned. If tag is already
// tombstoned it stays dead (the stale-operation path of spec §7), but
// previousTags are still tombstoned, so that an update delivered after
// its successor leaves the same state as in-order delivery.
func (r *Register[K, V]) Set(previousTags []K, tag K, value V) {
	stale := r.dead.Contains(tag)
	for _, p := range previousTags {
		delete(r.live, p)
		r.dead.Kill(p)
	}
	if !stale {
		r.live[tag] = value
	}
}

// Tags returns the current live tags, sorted.
func (r *Register[K, V]) Tags() []K {
	tags := make([]K, 0, len(r.live))
	for t := range r.live {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// ToObject projects the register to a single value. With a unique live
// tag this is unambiguous; with concurrent writes still live, it
// returns the value under the lexicographically smallest tag — the
// deterministic tie-break spec §9 calls for. ok is false only for an
// empty register.
func (r *Register[K, V]) ToObject() (value V, ok bool) {
	if len(r.live) == 0 {
		return value, false
	}
	tags := r.Tags()
	return r.live[tags[0]], true
}

// Tombstones returns every tag this register has killed, for
// host-level GC policy. The returned slice is a fresh copy.
func (r *Register[K, V]) Tombstones() []K {
	return r.dead.Snapshot()
}

type registerEntry[K any, V any] struct {
	Tag   K `json:"tag"`
	Value V `json:"value"`
}

type registerDump[K any, V any] struct {
	Live       []registerEntry[K, V] `json:"live"`
	Tombstones []K                   `json:"tombstones"`
}

// Dump serializes the register's entire state — live entries and
// tombstones — to JSON. Load(Dump()) reproduces behaviorally identical
// state (spec §6's round-trip requirement).
func (r *Register[K, V]) Dump() ([]byte, error) {
	d := registerDump[K, V]{
		Live:       make([]registerEntry[K, V], 0, len(r.live)),
		Tombstones: r.Tombstones(),
	}
	for _, t := range r.Tags() {
		d.Live = append(d.Live, registerEntry[K, V]{Tag: t, Value: r.live[t]})
	}
	sort.Slice(d.Tombstones, func(i, j int) bool { return d.Tombstones[i] < d.Tombstones[j] })
	return json.Marshal(d)
}

// Load replaces the register's state with a previously-Dumped one.
// Whether tombstone tracking is enabled is unaffected — it is fixed at
// construction, not carried by the dump.
func (r *Register[K, V]) Load(data []byte) error {
	var d registerDump[K, V]
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	r.live = make(map[K]V, len(d.Live))
	for _, e := range d.Live {
		r.live[e.Tag] = e.Value
	}
	r.dead.Load(d.Tombstones)
	return nil
}

// MergeDump folds a remote dump into this register instead of
// replacing local state: remote tombstones are applied first (killing
// any matching local live tag), then remote live tags are admitted
// through the same gate Set uses, so a tag tombstoned on either side
// stays dead. This is what anti-entropy sync uses; Load is for
// restoring a register's own previously-dumped state.
func (r *Register[K, V]) MergeDump(data []byte) error {
	var d registerDump[K, V]
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	for _, t := range d.Tombstones {
		r.dead.Kill(t)
		delete(r.live, t)
	}
	for _, e := range d.Live {
		if r.dead.Contains(e.Tag) {
			continue
		}
		r.live[e.Tag] = e.Value
	}
	return nil
}
