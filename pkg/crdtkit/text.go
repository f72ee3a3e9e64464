package crdtkit

import (
	"encoding/json"

	"github.com/amaydixit11/mview/internal/diffmatch"
)

// Text is a diff/patch text buffer. Unlike Register, Set, and List,
// Text is not a true CRDT under arbitrary concurrency: a diff computed
// against one state and applied to a different (concurrently-edited)
// state is accepted verbatim, clamping to what the current buffer can
// support rather than erroring. Divergence under true concurrency is
// the caller's concern — this view ships "best-effort merge" per
// spec §4.4 and §9, matching the special-cased, resolver-assisted text
// handling the pack shows for this one type
// (other_examples/5bccb194_brunoga-deep__crdt-crdt.go.go's
// textPatch/mergeTextRuns), rather than pretending text converges
// order-independently the way the other three views do.
type Text struct {
	current string
}

// NewText constructs an empty text buffer. Options is accepted for
// symmetry with the other three constructors; Text has no tombstone
// or randomness knobs to configure.
func NewText(Options) *Text {
	return &Text{}
}

// String returns the buffer's current contents.
func (t *Text) String() string {
	return t.current
}

// Diff produces a deterministic edit script transforming the buffer's
// current contents into target.
func (t *Text) Diff(target string) []diffmatch.Hunk {
	return diffmatch.Diff(t.current, target)
}

// Update applies d to the buffer, replacing its contents with the
// result. A diff whose retain/delete counts overrun the current buffer
// length is clamped rather than rejected — spec §7's "malformed diff"
// path never raises.
func (t *Text) Update(d []diffmatch.Hunk) {
	runes := []rune(t.current)
	var out []rune
	pos := 0

	for _, h := range d {
		switch h.Kind {
		case diffmatch.Retain:
			n := h.N
			if pos+n > len(runes) {
				n = max0(len(runes) - pos)
			}
			out = append(out, runes[pos:pos+n]...)
			pos += n
		case diffmatch.Delete:
			n := h.N
			if pos+n > len(runes) {
				n = max0(len(runes) - pos)
			}
			pos += n
		case diffmatch.Insert:
			out = append(out, []rune(h.Text)...)
		}
	}

	t.current = string(out)
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

type textDump struct {
	Current string `json:"current"`
}

// Dump serializes the buffer's current contents to JSON.
func (t *Text) Dump() ([]byte, error) {
	return json.Marshal(textDump{Current: t.current})
}

// Load replaces the buffer's contents with a previously-Dumped one.
func (t *Text) Load(data []byte) error {
	var d textDump
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	t.current = d.Current
	return nil
}

// MergeDump adopts a remote dump's contents wholesale. Text has no
// tag-based convergence to fall back on, so "merge" here is the same
// last-writer-wins replacement Load does — documented, not hidden,
// since it's the one view where anti-entropy sync can discard a
// concurrent local edit.
func (t *Text) MergeDump(data []byte) error {
	return t.Load(data)
}
