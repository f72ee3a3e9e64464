package transport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Allowlist tracks trusted peers, persisted to a JSON file so a
// replica remembers who it has paired with across restarts.
type Allowlist struct {
	mu     sync.RWMutex
	peers  map[peer.ID]AllowedPeer
	path   string
	strict bool
}

// AllowedPeer is one entry in the allowlist.
type AllowedPeer struct {
	PeerID    string   `json:"peer_id"`
	Name      string   `json:"name,omitempty"`
	AddedAt   int64    `json:"added_at"`
	Addresses []string `json:"addresses,omitempty"`
}

type allowlistFile struct {
	Peers []AllowedPeer `json:"peers"`
}

// NewAllowlist loads (or creates) the allowlist under dataDir. When
// strict is false, IsAllowed accepts every peer regardless of content.
func NewAllowlist(dataDir string, strict bool) (*Allowlist, error) {
	al := &Allowlist{
		peers:  make(map[peer.ID]AllowedPeer),
		path:   filepath.Join(dataDir, "peers.json"),
		strict: strict,
	}
	if err := al.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return al, nil
}

// Add records a peer as trusted and persists the allowlist.
func (al *Allowlist) Add(id peer.ID, name string, addresses []string) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	al.peers[id] = AllowedPeer{
		PeerID:    id.String(),
		Name:      name,
		AddedAt:   time.Now().Unix(),
		Addresses: addresses,
	}
	return al.save()
}

// Remove drops a peer from the allowlist.
func (al *Allowlist) Remove(id peer.ID) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	delete(al.peers, id)
	return al.save()
}

// IsAllowed reports whether id may sync with this host.
func (al *Allowlist) IsAllowed(id peer.ID) bool {
	al.mu.RLock()
	defer al.mu.RUnlock()

	if !al.strict {
		return true
	}
	_, ok := al.peers[id]
	return ok
}

// List returns every trusted peer.
func (al *Allowlist) List() []AllowedPeer {
	al.mu.RLock()
	defer al.mu.RUnlock()

	out := make([]AllowedPeer, 0, len(al.peers))
	for _, p := range al.peers {
		out = append(out, p)
	}
	return out
}

// Count returns the number of trusted peers.
func (al *Allowlist) Count() int {
	al.mu.RLock()
	defer al.mu.RUnlock()
	return len(al.peers)
}

func (al *Allowlist) load() error {
	data, err := os.ReadFile(al.path)
	if err != nil {
		return err
	}

	var file allowlistFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	for _, p := range file.Peers {
		id, err := peer.Decode(p.PeerID)
		if err != nil {
			continue
		}
		al.peers[id] = p
	}
	return nil
}

func (al *Allowlist) save() error {
	if err := os.MkdirAll(filepath.Dir(al.path), 0700); err != nil {
		return fmt.Errorf("transport: create allowlist dir: %w", err)
	}

	file := allowlistFile{Peers: make([]AllowedPeer, 0, len(al.peers))}
	for _, p := range al.peers {
		file.Peers = append(file.Peers, p)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(al.path, data, 0600)
}
