package host

import (
	"fmt"

	"github.com/amaydixit11/mview/internal/store"
)

// clock abstracts the current time so SaveAll's UpdatedAt stamps stay
// testable without reaching into Go's real wall clock from a caller
// that wants deterministic golden output. A real host passes
// time.Now().UnixNano directly.
type clock func() int64

// SaveAll dumps every view into st, stamping each row with now().
func (h *Hub) SaveAll(st *store.Store, now clock) error {
	for _, name := range h.Views() {
		kind, err := h.Kind(name)
		if err != nil {
			return err
		}
		dump, err := h.Dump(name)
		if err != nil {
			return fmt.Errorf("host: dump %q: %w", name, err)
		}
		if err := st.Put(store.Record{Name: name, Kind: kind, Dump: dump, UpdatedAt: now()}); err != nil {
			return err
		}
	}
	return nil
}

// LoadAll hydrates every persisted view from st into the hub. Each
// record goes through Load, so it is merged into any in-memory state
// already held under the same name rather than replacing it.
func (h *Hub) LoadAll(st *store.Store) error {
	records, err := st.List("")
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := h.Load(r.Name, r.Kind, r.Dump); err != nil {
			return fmt.Errorf("host: load %q: %w", r.Name, err)
		}
	}
	return nil
}
