// Package host wires pkg/crdtkit views to internal/transport and
// internal/store: a Hub is a named registry of views that the
// transport can digest, dump, and load by name, and that a demo
// application can fetch by name to read and mutate locally.
//
// pkg/crdtkit views carry no internal lock (they are "single-threaded
// cooperative" per spec). Concurrent access from the sync goroutine
// and the application's own goroutines is serialized here instead,
// one sync.RWMutex per named view, following the
// Hub/Document-per-name locking pattern of the retrieval pack's
// Polqt-golang-journey CRDT collab backend
// (session/session.go's Hub.docs map guarded per-Document) rather
// than wrapping every view in the same lock.
package host

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/amaydixit11/mview/internal/digest"
	"github.com/amaydixit11/mview/pkg/crdtkit"
)

// Kind names one of the four view kinds a Hub can hold, matching
// pkg/wire.Kind.
type Kind string

const (
	KindRegister Kind = "register"
	KindSet      Kind = "set"
	KindList     Kind = "list"
	KindText     Kind = "text"
)

// Hub holds every named view a replica serves. Views created through
// a Hub method use fixed wire-level type parameters
// (string tags, string-or-json.RawMessage values) so that a remote
// dump naming a view kind this replica has never locally constructed
// can still be instantiated on demand by internal/transport's Load
// path — a generic crdtkit.Register[MyKey, MyValue] built directly by
// the application, outside a Hub, is not itself remotely loadable
// unless the application bridges it through a Hub-compatible codec.
type Hub struct {
	mu    sync.RWMutex
	opts  crdtkit.Options
	kinds map[string]Kind

	registers map[string]*guardedRegister
	sets      map[string]*guardedSet
	lists     map[string]*guardedList
	texts     map[string]*guardedText
}

type guardedRegister struct {
	mu   sync.RWMutex
	view *crdtkit.Register[string, json.RawMessage]
}

type guardedSet struct {
	mu   sync.RWMutex
	view *crdtkit.Set[string, string]
}

type guardedList struct {
	mu   sync.RWMutex
	view *crdtkit.List[json.RawMessage]
}

type guardedText struct {
	mu   sync.RWMutex
	view *crdtkit.Text
}

// NewHub constructs an empty hub. opts applies to every view the hub
// creates, whether by explicit accessor or by an incoming remote Load.
func NewHub(opts crdtkit.Options) *Hub {
	return &Hub{
		opts:      opts,
		kinds:     make(map[string]Kind),
		registers: make(map[string]*guardedRegister),
		sets:      make(map[string]*guardedSet),
		lists:     make(map[string]*guardedList),
		texts:     make(map[string]*guardedText),
	}
}

// Register returns the named register view, creating it if this is
// the first reference.
func (h *Hub) Register(name string) *crdtkit.Register[string, json.RawMessage] {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.registers[name]
	if !ok {
		g = &guardedRegister{view: crdtkit.NewRegister[string, json.RawMessage](h.opts)}
		h.registers[name] = g
		h.kinds[name] = KindRegister
	}
	return g.view
}

// Set returns the named set view, creating it if this is the first
// reference. Values are the JSON-encoded text of the application
// value, since crdtkit.Set requires a comparable value type.
func (h *Hub) Set(name string) *crdtkit.Set[string, string] {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.sets[name]
	if !ok {
		g = &guardedSet{view: crdtkit.NewSet[string, string](h.opts)}
		h.sets[name] = g
		h.kinds[name] = KindSet
	}
	return g.view
}

// List returns the named list view, creating it if this is the first
// reference.
func (h *Hub) List(name string) *crdtkit.List[json.RawMessage] {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.lists[name]
	if !ok {
		g = &guardedList{view: crdtkit.NewList[json.RawMessage](h.opts)}
		h.lists[name] = g
		h.kinds[name] = KindList
	}
	return g.view
}

// Text returns the named text view, creating it if this is the first
// reference.
func (h *Hub) Text(name string) *crdtkit.Text {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.texts[name]
	if !ok {
		g = &guardedText{view: crdtkit.NewText(h.opts)}
		h.texts[name] = g
		h.kinds[name] = KindText
	}
	return g.view
}

// Lock acquires the named view's write lock and returns an unlock
// function. Callers that need to perform more than one operation
// atomically (e.g. a read-modify-write on a Set) should hold this
// around the whole sequence; individual accessor methods above do not
// lock on their own, since a Go method value call through the
// returned view is exactly what a caller wants to serialize.
func (h *Hub) Lock(name string) (unlock func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	switch h.kinds[name] {
	case KindRegister:
		g := h.registers[name]
		g.mu.Lock()
		return g.mu.Unlock
	case KindSet:
		g := h.sets[name]
		g.mu.Lock()
		return g.mu.Unlock
	case KindList:
		g := h.lists[name]
		g.mu.Lock()
		return g.mu.Unlock
	case KindText:
		g := h.texts[name]
		g.mu.Lock()
		return g.mu.Unlock
	default:
		return func() {}
	}
}

// Views implements transport.ViewHub.
func (h *Hub) Views() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.kinds))
	for n := range h.kinds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Kind implements transport.ViewHub.
func (h *Hub) Kind(name string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	k, ok := h.kinds[name]
	if !ok {
		return "", fmt.Errorf("host: unknown view %q", name)
	}
	return string(k), nil
}

// Dump implements transport.ViewHub.
func (h *Hub) Dump(name string) ([]byte, error) {
	h.mu.RLock()
	kind, ok := h.kinds[name]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("host: unknown view %q", name)
	}
	return h.dumpKind(name, kind)
}

func (h *Hub) dumpKind(name string, kind Kind) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	switch kind {
	case KindRegister:
		g := h.registers[name]
		g.mu.RLock()
		defer g.mu.RUnlock()
		return g.view.Dump()
	case KindSet:
		g := h.sets[name]
		g.mu.RLock()
		defer g.mu.RUnlock()
		return g.view.Dump()
	case KindList:
		g := h.lists[name]
		g.mu.RLock()
		defer g.mu.RUnlock()
		return g.view.Dump()
	case KindText:
		g := h.texts[name]
		g.mu.RLock()
		defer g.mu.RUnlock()
		return g.view.Dump()
	default:
		return nil, fmt.Errorf("host: unknown view kind %q for %q", kind, name)
	}
}

// Load implements transport.ViewHub: it creates the named view with
// the given kind if this replica has never seen it, then merges dump
// into whatever state the view already holds via MergeDump rather
// than replacing it outright — a freshly created view merging its
// first dump behaves identically to a replace, which is what makes
// this safe to reuse for LoadAll's from-empty rehydration path too.
func (h *Hub) Load(name string, kind string, dump []byte) error {
	switch Kind(kind) {
	case KindRegister:
		h.Register(name) // ensures existence
		h.mu.RLock()
		g := h.registers[name]
		h.mu.RUnlock()
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.view.MergeDump(dump)
	case KindSet:
		h.Set(name)
		h.mu.RLock()
		g := h.sets[name]
		h.mu.RUnlock()
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.view.MergeDump(dump)
	case KindList:
		h.List(name)
		h.mu.RLock()
		g := h.lists[name]
		h.mu.RUnlock()
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.view.MergeDump(dump)
	case KindText:
		h.Text(name)
		h.mu.RLock()
		g := h.texts[name]
		h.mu.RUnlock()
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.view.MergeDump(dump)
	default:
		return fmt.Errorf("host: unknown view kind %q", kind)
	}
}

// Digest implements transport.ViewHub.
func (h *Hub) Digest(name string) ([digest.Size]byte, error) {
	dump, err := h.Dump(name)
	if err != nil {
		return [digest.Size]byte{}, err
	}
	return digest.Sum(json.RawMessage(dump))
}
