// Package logoot implements the dense positional identifiers used by the
// List view: an ordered sequence of (integer, siteId?) positions with a
// strict total order and a between() operation that always finds a new
// identifier strictly between any two existing ones.
package logoot

import (
	"bytes"
	"encoding/binary"
)

// Position is one coordinate of an ID: an integer, optionally broken by
// an opaque site identifier when two replicas mint the same integer
// concurrently. An empty Site compares as the virtual minimum site.
type Position struct {
	N    uint64
	Site string
}

// Less orders positions by integer first, then by site.
func (p Position) Less(o Position) bool {
	if p.N != o.N {
		return p.N < o.N
	}
	return p.Site < o.Site
}

// Equal reports whether p and o are the same coordinate.
func (p Position) Equal(o Position) bool {
	return p.N == o.N && p.Site == o.Site
}

// ID is a Logoot positional identifier: an ordered sequence of
// positions. Two distinct IDs are never equal; a shorter ID that is a
// proper prefix of a longer one sorts before it (a virtual (0, "")
// position pads any depth beyond its length).
type ID []Position

// Less reports whether id sorts strictly before other.
func (id ID) Less(other ID) bool {
	n := len(id)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if id[i].Equal(other[i]) {
			continue
		}
		return id[i].Less(other[i])
	}
	return len(id) < len(other)
}

// Equal reports whether id and other are the same sequence of positions.
func (id ID) Equal(other ID) bool {
	if len(id) != len(other) {
		return false
	}
	for i := range id {
		if !id[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Clone returns a copy of id sharing no backing array with it.
func (id ID) Clone() ID {
	c := make(ID, len(id))
	copy(c, id)
	return c
}

// Compare is a three-way comparator suitable for sort.Slice callers that
// prefer cmp-style ordering.
func Compare(a, b ID) int {
	switch {
	case a.Equal(b):
		return 0
	case a.Less(b):
		return -1
	default:
		return 1
	}
}

// siteTerminator marks the end of a site string inside Encode's output.
// Site strings must not contain this byte; opaque application-supplied
// site identifiers are expected to be short printable tokens (UUIDs,
// peer IDs), so this is a reasonable constraint to document rather than
// defend against.
const siteTerminator = 0x00

// Encode produces the canonical byte encoding of id: each position as an
// 8-byte big-endian integer followed by its NUL-terminated site string.
// Both pieces are fixed-width-or-terminated so that bytes.Compare on two
// encodings agrees with ID.Less on the decoded values — the property
// spec.md §6 requires so storage backends can sort without decoding.
func Encode(id ID) []byte {
	var buf bytes.Buffer
	var n [8]byte
	for _, p := range id {
		binary.BigEndian.PutUint64(n[:], p.N)
		buf.Write(n[:])
		buf.WriteString(p.Site)
		buf.WriteByte(siteTerminator)
	}
	return buf.Bytes()
}

// Decode reverses Encode. It returns nil, false on malformed input.
func Decode(b []byte) (ID, bool) {
	var id ID
	for len(b) > 0 {
		if len(b) < 8 {
			return nil, false
		}
		n := binary.BigEndian.Uint64(b[:8])
		b = b[8:]
		term := bytes.IndexByte(b, siteTerminator)
		if term < 0 {
			return nil, false
		}
		id = append(id, Position{N: n, Site: string(b[:term])})
		b = b[term+1:]
	}
	return id, true
}
