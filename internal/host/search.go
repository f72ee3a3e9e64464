package host

import (
	"encoding/json"
	"strings"

	"github.com/amaydixit11/mview/internal/logoot"
	"github.com/amaydixit11/mview/internal/search"
)

// content renders the named view's current projection to a single
// string worth indexing: Register's live value, Set/List's live
// values joined by whitespace, or Text's buffer. Mirrors the
// teacher's pkg/engine.SearchWithBleve wrapper, which hands an
// already-rendered entry's content to search.Index rather than
// reaching into vault internals itself.
func (h *Hub) content(name string, kind Kind) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	switch kind {
	case KindRegister:
		g, ok := h.registers[name]
		if !ok {
			return ""
		}
		g.mu.RLock()
		defer g.mu.RUnlock()
		v, ok := g.view.ToObject()
		if !ok {
			return ""
		}
		return string(v)
	case KindSet:
		g, ok := h.sets[name]
		if !ok {
			return ""
		}
		g.mu.RLock()
		defer g.mu.RUnlock()
		var parts []string
		g.view.ForEach(func(tags []string, value string, index int) {
			parts = append(parts, value)
		})
		return strings.Join(parts, " ")
	case KindList:
		g, ok := h.lists[name]
		if !ok {
			return ""
		}
		g.mu.RLock()
		defer g.mu.RUnlock()
		var parts []string
		g.view.ForEach(func(tag logoot.ID, value json.RawMessage, index int) {
			parts = append(parts, string(value))
		})
		return strings.Join(parts, " ")
	case KindText:
		g, ok := h.texts[name]
		if !ok {
			return ""
		}
		g.mu.RLock()
		defer g.mu.RUnlock()
		return g.view.String()
	default:
		return ""
	}
}

// Reindex rebuilds idx from every view currently held by the hub. A
// one-shot CLI command pairs this with search.NewMemoryIndex so a
// search always reflects the hub's just-loaded state rather than a
// stale on-disk index from a previous invocation; a long-running
// daemon would instead call this after each sync round against a
// persistent search.NewIndex.
func (h *Hub) Reindex(idx *search.Index) error {
	for _, name := range h.Views() {
		kind, err := h.Kind(name)
		if err != nil {
			return err
		}
		if err := idx.IndexView(name, kind, h.content(name, Kind(kind))); err != nil {
			return err
		}
	}
	return nil
}

// Search runs a full-text query against idx. The hub itself holds no
// search state; idx is built (or rebuilt, via Reindex) by the caller,
// matching the teacher's own SearchWithBleve, which takes the index
// as a parameter rather than owning one.
func (h *Hub) Search(idx *search.Index, query string, opts search.SearchOptions) ([]search.SearchResult, error) {
	return idx.Search(query, opts)
}
