package crdtkit

import (
	"encoding/base64"
	"encoding/json"
	"math/rand"
	"sort"

	"github.com/amaydixit11/mview/internal/logoot"
	"github.com/amaydixit11/mview/internal/tombstone"
)

// defaultRand is the package-level fallback randomness source for
// List.Between on lists built without an Options.Rand; it is drawn
// whether or not a call supplies a siteId. It is a known weak PRNG
// (spec §9's design note); an
// application that needs cross-replica-deterministic tests should
// inject Options.Rand instead.
var defaultRand = rand.New(rand.NewSource(1))

// List is an ordered sequence keyed by Logoot positional tags: dense
// identifiers with a strict total order, so Between(a, b) always mints
// a new tag strictly between any two existing ones without
// renumbering the rest of the list. Grounded on the teacher's
// ordered-map-plus-tombstone-set discipline in Replica
// (internal/crdt/replica.go), generalized from a uuid.UUID-keyed map
// to a logoot.ID-keyed sorted structure.
type List[V any] struct {
	entries map[string]listEntry[V] // keyed by the encoded form of the ID for O(1) lookup
	order   []logoot.ID             // kept sorted; rebuilt lazily on read after a dirty insert
	dirty   bool
	dead    *tombstone.Set[string]
	rng     logoot.Rand
}

type listEntry[V any] struct {
	id    logoot.ID
	value V
}

// NewList constructs an empty list.
func NewList[V any](opts Options) *List[V] {
	rng := opts.Rand
	if rng == nil {
		rng = defaultRand
	}
	return &List[V]{
		entries: make(map[string]listEntry[V]),
		dead:    tombstone.New[string](!opts.NoTombstones),
		rng:     rng,
	}
}

func idKey(id logoot.ID) string {
	return string(logoot.Encode(id))
}

// Insert places value at tag. A no-op if tag is already tombstoned.
// Re-inserting the same tag with the same value is idempotent
// (spec §8 invariant 4); re-inserting with a different value overwrites
// it, matching a sorted-map's natural upsert semantics.
func (l *List[V]) Insert(tag logoot.ID, value V) {
	key := idKey(tag)
	if l.dead.Contains(key) {
		return
	}
	if _, exists := l.entries[key]; !exists {
		l.order = append(l.order, tag)
		l.dirty = true
	}
	l.entries[key] = listEntry[V]{id: tag, value: value}
}

// Remove deletes tag from the list and tombstones it. A second Remove
// of the same tag is a no-op (spec §8 invariant 4).
func (l *List[V]) Remove(tag logoot.ID) {
	key := idKey(tag)
	delete(l.entries, key)
	l.dead.Kill(key)
	l.dirty = true
}

func (l *List[V]) resort() {
	if !l.dirty {
		return
	}
	live := make([]logoot.ID, 0, len(l.entries))
	for _, e := range l.entries {
		live = append(live, e.id)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Less(live[j]) })
	l.order = live
	l.dirty = false
}

// Tags returns the positional tag at index in sorted order, or nil if
// index is outside [0, Count()).
func (l *List[V]) Tags(index int) logoot.ID {
	l.resort()
	if index < 0 || index >= len(l.order) {
		return nil
	}
	return l.order[index]
}

// Get returns the value at a 0-based index in sorted order.
func (l *List[V]) Get(index int) (value V, ok bool) {
	l.resort()
	if index < 0 || index >= len(l.order) {
		return value, false
	}
	return l.entries[idKey(l.order[index])].value, true
}

// GetTag returns the value stored at tag directly, bypassing index
// lookup.
func (l *List[V]) GetTag(tag logoot.ID) (value V, ok bool) {
	e, exists := l.entries[idKey(tag)]
	return e.value, exists
}

// Count returns the number of live entries.
func (l *List[V]) Count() int {
	return len(l.entries)
}

// Between mints a new positional tag strictly between a and b. A nil a
// denotes the virtual minimum; a nil b denotes the virtual maximum. An
// empty site lets rng alone break concurrent ties; a non-empty site
// guarantees no collision with another replica at the cost of a
// longer identifier (spec §4.5).
func (l *List[V]) Between(a, b logoot.ID, site string) logoot.ID {
	return logoot.Between(a, b, site, l.rng)
}

// ToObject returns every live value in sorted-tag order.
func (l *List[V]) ToObject() []V {
	l.resort()
	out := make([]V, len(l.order))
	for i, id := range l.order {
		out[i] = l.entries[idKey(id)].value
	}
	return out
}

// ForEach visits every live entry in sorted-tag order.
func (l *List[V]) ForEach(fn func(tag logoot.ID, value V, index int)) {
	l.resort()
	for i, id := range l.order {
		fn(id, l.entries[idKey(id)].value, i)
	}
}

// ListMap applies fn to every live entry in sorted-tag order and
// collects the results. A free function, not a method, because Go
// methods cannot introduce their own type parameter (the result type).
func ListMap[V any, R any](l *List[V], fn func(tag logoot.ID, value V, index int) R) []R {
	l.resort()
	out := make([]R, len(l.order))
	for i, id := range l.order {
		out[i] = fn(id, l.entries[idKey(id)].value, i)
	}
	return out
}

// Tombstones returns every positional tag this list has killed.
func (l *List[V]) Tombstones() []string {
	return l.dead.Snapshot()
}

type listDumpEntry[V any] struct {
	Tag   string `json:"tag"` // base64 of the canonical Logoot encoding
	Value V      `json:"value"`
}

type listDump[V any] struct {
	Entries    []listDumpEntry[V] `json:"entries"`
	Tombstones []string           `json:"tombstones"` // base64-encoded keys
}

// encodeTombstones base64-encodes each raw idKey so the result is
// always valid UTF-8. idKey is the canonical Logoot byte encoding cast
// to a string, which routinely contains bytes that aren't valid UTF-8
// on their own (e.g. the lone 0xC8 of a big-endian position 200); carrying
// it through encoding/json as a bare string would let json.Marshal
// silently replace the offending bytes with U+FFFD, and the tombstone
// would never decode back to the key it was meant to kill.
func encodeTombstones(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = base64.StdEncoding.EncodeToString([]byte(k))
	}
	return out
}

func decodeTombstones(encoded []string) ([]string, error) {
	out := make([]string, len(encoded))
	for i, e := range encoded {
		raw, err := base64.StdEncoding.DecodeString(e)
		if err != nil {
			return nil, err
		}
		out[i] = string(raw)
	}
	return out, nil
}

// Dump serializes the list's entire state — entries in sorted order
// plus tombstoned tag keys — to JSON. Positional tags are carried as
// the base64 text of their canonical byte encoding (spec §6); the
// base64 text itself does not sort in tag order, but its decoded
// bytes do under bytes.Compare. Tombstone keys are carried the same
// way, base64-encoded, since they are the same raw byte encoding
// under the hood.
func (l *List[V]) Dump() ([]byte, error) {
	l.resort()
	d := listDump[V]{
		Entries:    make([]listDumpEntry[V], 0, len(l.order)),
		Tombstones: encodeTombstones(l.Tombstones()),
	}
	for _, id := range l.order {
		d.Entries = append(d.Entries, listDumpEntry[V]{
			Tag:   base64.StdEncoding.EncodeToString(logoot.Encode(id)),
			Value: l.entries[idKey(id)].value,
		})
	}
	sort.Strings(d.Tombstones)
	return json.Marshal(d)
}

// Load replaces the list's state with a previously-Dumped one.
func (l *List[V]) Load(data []byte) error {
	var d listDump[V]
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	l.entries = make(map[string]listEntry[V], len(d.Entries))
	l.order = l.order[:0]
	for _, e := range d.Entries {
		raw, err := base64.StdEncoding.DecodeString(e.Tag)
		if err != nil {
			return err
		}
		id, ok := logoot.Decode(raw)
		if !ok {
			return errMalformedTag
		}
		l.entries[idKey(id)] = listEntry[V]{id: id, value: e.Value}
		l.order = append(l.order, id)
	}
	l.dirty = true
	tombstones, err := decodeTombstones(d.Tombstones)
	if err != nil {
		return err
	}
	l.dead.Load(tombstones)
	return nil
}

// MergeDump folds a remote dump into this list instead of replacing
// local state: remote tombstones are applied first (killing and
// evicting any matching local entry), then remote entries are
// admitted through the same gate Insert uses, so a tag tombstoned on
// either side stays dead and local-only entries absent from the
// remote dump are kept. This is what anti-entropy sync uses; Load is
// for restoring a list's own previously-dumped state.
func (l *List[V]) MergeDump(data []byte) error {
	var d listDump[V]
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	tombstones, err := decodeTombstones(d.Tombstones)
	if err != nil {
		return err
	}
	for _, key := range tombstones {
		l.dead.Kill(key)
		if _, exists := l.entries[key]; exists {
			delete(l.entries, key)
			l.dirty = true
		}
	}
	for _, e := range d.Entries {
		raw, err := base64.StdEncoding.DecodeString(e.Tag)
		if err != nil {
			return err
		}
		id, ok := logoot.Decode(raw)
		if !ok {
			return errMalformedTag
		}
		l.Insert(id, e.Value)
	}
	return nil
}
