// Package transport provides peer-to-peer gossip synchronization for a
// set of named CRDT views, built on libp2p with mDNS and Kademlia DHT
// discovery. It is grounded on the teacher's internal/sync package:
// the state-hash-then-full-state protocol, the allowlist, the DHT
// discovery wrapper, and the signed peer invite all carry over, but
// the single ReplicaState the teacher gossips becomes a map of
// independently-dumped named views, since a replica in this library
// hosts however many Register/Set/List/Text views the application
// constructs rather than one fixed engine.
package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/amaydixit11/mview/internal/digest"
)

// ProtocolID is the libp2p stream protocol used for view sync.
const ProtocolID = "/mview/sync/1.0.0"

// ServiceName is the mDNS service tag peers advertise under.
const ServiceName = "_mview-discovery._udp"

// Config configures a Service.
type Config struct {
	// ListenAddrs are the multiaddrs to listen on.
	// Default: /ip4/0.0.0.0/tcp/0 (random port).
	ListenAddrs []string

	// SyncInterval is how often to sync with every connected peer.
	SyncInterval time.Duration

	// EnableMDNS enables LAN peer discovery.
	EnableMDNS bool

	// EnableDHT enables global peer discovery via the Kademlia DHT.
	EnableDHT bool

	// AllowlistPath is the directory holding the trusted-peers file.
	// Empty disables allowlist persistence.
	AllowlistPath string

	// StrictAllowlist rejects any peer not present in the allowlist.
	StrictAllowlist bool

	// Logger receives sync progress events. Defaults to a no-op.
	Logger Logger

	// PrivateKey is the host identity key. Generated if nil.
	PrivateKey crypto.PrivKey
}

// DefaultConfig returns sensible defaults: random local port, mDNS on,
// DHT off, five-second periodic sync.
func DefaultConfig() Config {
	return Config{
		ListenAddrs:  []string{"/ip4/0.0.0.0/tcp/0"},
		SyncInterval: 5 * time.Second,
		EnableMDNS:   true,
	}
}

// Logger is the minimal structured-enough logging surface the
// transport needs.
type Logger interface {
	Printf(format string, v ...interface{})
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...interface{}) {}

// ViewHub is everything the transport needs from the set of views a
// replica hosts: their names, their current dumps, and their digests.
// internal/host's Hub type implements this.
type ViewHub interface {
	// Views lists every view name currently registered.
	Views() []string
	// Dump returns the wire-format dump of the named view.
	Dump(name string) ([]byte, error)
	// Load merges a remote dump of the named view into local state.
	// Unknown names are created with the view's recorded kind.
	Load(name string, kind string, dump []byte) error
	// Digest returns a content digest of the named view for cheap
	// equality comparison before paying for a full dump exchange.
	Digest(name string) ([digest.Size]byte, error)
	// Kind returns the view kind ("register", "set", "list", "text")
	// for a locally known view.
	Kind(name string) (string, error)
}

// MessageType identifies what a protocol Message carries.
type MessageType uint8

const (
	// MsgDigests carries every view's current digest.
	MsgDigests MessageType = iota + 1
	// MsgDumps carries full dumps for the views named in WantNames (a
	// request) or directly as Dumps/Kinds (an unsolicited push).
	MsgDumps
	// MsgWant requests full dumps for the named views.
	MsgWant
)

// Message is one frame of the sync protocol.
type Message struct {
	Type      MessageType          `json:"type"`
	SessionID string               `json:"session_id,omitempty"`
	Digests   map[string][32]byte  `json:"digests,omitempty"`
	WantNames []string             `json:"want_names,omitempty"`
	Dumps     map[string][]byte    `json:"dumps,omitempty"`
	Kinds     map[string]string    `json:"kinds,omitempty"`
}

// Encode serializes a Message.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage deserializes a Message.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("transport: decode message: %w", err)
	}
	return &m, nil
}

// GenerateSessionID creates a unique identifier for one sync exchange,
// carried in every Message of that exchange. Concurrent syncs with the
// same peer are de-duplicated by peer ID, not by this value.
func GenerateSessionID() string {
	ts := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("%d-%s", ts, hex.EncodeToString(b))
}

// Service is the transport's public surface.
type Service interface {
	Start(ctx context.Context) error
	Stop() error
	Peers() []peer.ID
	SyncWith(ctx context.Context, p peer.ID) error
	Metrics() Metrics
	GetHost() host.Host
	ConnectPeer(invite *PeerInvite) error
}

// Metrics summarizes sync activity since startup.
type Metrics struct {
	SyncAttempts  int64
	SyncSuccesses int64
	SyncFailures  int64
}
