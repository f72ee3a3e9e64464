package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
)

type service struct {
	host  host.Host
	hub   ViewHub
	cfg   Config
	log   Logger

	allowlist    *Allowlist
	mdnsService  mdns.Service
	dhtDiscovery *DHTDiscovery
	peers        map[peer.ID]struct{}
	peersMu      sync.RWMutex

	activeSyncs   map[string]struct{}
	activeSyncsMu sync.Mutex

	attempts, successes, failures int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a libp2p-backed Service that keeps hub's views in
// sync with connected peers.
func NewService(hub ViewHub, cfg Config) (Service, error) {
	listenAddrs := make([]multiaddr.Multiaddr, len(cfg.ListenAddrs))
	for i, addr := range cfg.ListenAddrs {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return nil, fmt.Errorf("transport: invalid listen address %s: %w", addr, err)
		}
		listenAddrs[i] = ma
	}

	opts := []libp2p.Option{libp2p.ListenAddrs(listenAddrs...)}
	if cfg.PrivateKey != nil {
		opts = append(opts, libp2p.Identity(cfg.PrivateKey))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("transport: create host: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	var allowlist *Allowlist
	if cfg.AllowlistPath != "" {
		al, err := NewAllowlist(cfg.AllowlistPath, cfg.StrictAllowlist)
		if err != nil {
			return nil, fmt.Errorf("transport: load allowlist: %w", err)
		}
		allowlist = al
		logger.Printf("allowlist enabled (strict=%v): %d peers loaded", cfg.StrictAllowlist, al.Count())
	}

	return &service{
		host:        h,
		hub:         hub,
		cfg:         cfg,
		log:         logger,
		allowlist:   allowlist,
		peers:       make(map[peer.ID]struct{}),
		activeSyncs: make(map[string]struct{}),
	}, nil
}

func (s *service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.host.SetStreamHandler(protocol.ID(ProtocolID), s.handleStream)

	if s.cfg.EnableMDNS {
		m := mdns.NewMdnsService(s.host, ServiceName, mdnsNotifee{s})
		if err := m.Start(); err != nil {
			return fmt.Errorf("transport: start mdns: %w", err)
		}
		s.mdnsService = m
		s.log.Printf("mdns discovery enabled")
	}

	if s.cfg.EnableDHT {
		d, err := NewDHTDiscovery(s.host, GetDefaultBootstrapPeers(), s.log)
		if err != nil {
			return fmt.Errorf("transport: start dht: %w", err)
		}
		if err := d.Start(s.handlePeerFound); err != nil {
			return fmt.Errorf("transport: start dht discovery: %w", err)
		}
		s.dhtDiscovery = d
		s.log.Printf("dht discovery enabled")
	}

	s.wg.Add(1)
	go s.syncLoop()

	s.log.Printf("sync service started, listening on %v", s.host.Addrs())
	return nil
}

func (s *service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if s.mdnsService != nil {
		s.mdnsService.Close()
	}
	if s.dhtDiscovery != nil {
		s.dhtDiscovery.Stop()
	}
	return s.host.Close()
}

func (s *service) Peers() []peer.ID {
	s.peersMu.RLock()
	defer s.peersMu.RUnlock()

	out := make([]peer.ID, 0, len(s.peers))
	for p := range s.peers {
		out = append(out, p)
	}
	return out
}

func (s *service) Metrics() Metrics {
	return Metrics{
		SyncAttempts:  atomic.LoadInt64(&s.attempts),
		SyncSuccesses: atomic.LoadInt64(&s.successes),
		SyncFailures:  atomic.LoadInt64(&s.failures),
	}
}

func (s *service) GetHost() host.Host { return s.host }

func (s *service) ConnectPeer(invite *PeerInvite) error {
	id, err := peer.Decode(invite.PeerID)
	if err != nil {
		return fmt.Errorf("transport: invalid peer id: %w", err)
	}

	if s.allowlist != nil {
		if err := s.allowlist.Add(id, "", invite.Addresses); err != nil {
			return fmt.Errorf("transport: add to allowlist: %w", err)
		}
	}

	info := peer.AddrInfo{ID: id}
	for _, addrStr := range invite.Addresses {
		ma, err := multiaddr.NewMultiaddr(addrStr)
		if err != nil {
			continue
		}
		info.Addrs = append(info.Addrs, ma)
	}
	if len(info.Addrs) == 0 {
		return fmt.Errorf("transport: invite has no usable addresses")
	}

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	if err := s.host.Connect(ctx, info); err != nil {
		return fmt.Errorf("transport: connect: %w", err)
	}

	go s.SyncWith(s.ctx, id)
	return nil
}

func (s *service) checkAllowlist(id peer.ID) bool {
	if s.allowlist == nil {
		return true
	}
	return s.allowlist.IsAllowed(id)
}

// SyncWith exchanges view digests with peerID, then dumps for every
// view whose digest disagrees (or that one side doesn't have yet).
func (s *service) SyncWith(parentCtx context.Context, peerID peer.ID) error {
	ctx, cancel := context.WithTimeout(parentCtx, 2*time.Minute)
	defer cancel()

	atomic.AddInt64(&s.attempts, 1)
	sessionID := GenerateSessionID()

	s.activeSyncsMu.Lock()
	if _, active := s.activeSyncs[peerID.String()]; active {
		s.activeSyncsMu.Unlock()
		return nil
	}
	s.activeSyncs[peerID.String()] = struct{}{}
	s.activeSyncsMu.Unlock()
	defer func() {
		s.activeSyncsMu.Lock()
		delete(s.activeSyncs, peerID.String())
		s.activeSyncsMu.Unlock()
	}()

	stream, err := s.host.NewStream(ctx, peerID, protocol.ID(ProtocolID))
	if err != nil {
		atomic.AddInt64(&s.failures, 1)
		return fmt.Errorf("transport: open stream: %w", err)
	}
	defer stream.Close()
	stream.SetDeadline(time.Now().Add(30 * time.Second))

	digests, err := s.localDigests()
	if err != nil {
		atomic.AddInt64(&s.failures, 1)
		return err
	}
	if err := writeMessage(stream, &Message{Type: MsgDigests, SessionID: sessionID, Digests: digests}); err != nil {
		atomic.AddInt64(&s.failures, 1)
		return fmt.Errorf("transport: send digests: %w", err)
	}

	resp, err := readMessage(stream)
	if err != nil {
		atomic.AddInt64(&s.failures, 1)
		return fmt.Errorf("transport: read response: %w", err)
	}

	switch resp.Type {
	case MsgDigests:
		want := s.diverging(digests, resp.Digests)
		if len(want) == 0 {
			atomic.AddInt64(&s.successes, 1)
			return nil
		}
		// handleStream answers one request per stream and then closes
		// it, so the want request goes out on a fresh stream.
		wantStream, err := s.host.NewStream(ctx, peerID, protocol.ID(ProtocolID))
		if err != nil {
			atomic.AddInt64(&s.failures, 1)
			return fmt.Errorf("transport: open want stream: %w", err)
		}
		defer wantStream.Close()
		wantStream.SetDeadline(time.Now().Add(30 * time.Second))
		if err := writeMessage(wantStream, &Message{Type: MsgWant, SessionID: sessionID, WantNames: want}); err != nil {
			atomic.AddInt64(&s.failures, 1)
			return fmt.Errorf("transport: send want: %w", err)
		}
		dumps, err := readMessage(wantStream)
		if err != nil {
			atomic.AddInt64(&s.failures, 1)
			return fmt.Errorf("transport: read dumps: %w", err)
		}
		if err := s.applyDumps(dumps); err != nil {
			atomic.AddInt64(&s.failures, 1)
			return err
		}
	case MsgDumps:
		if err := s.applyDumps(resp); err != nil {
			atomic.AddInt64(&s.failures, 1)
			return err
		}
	}

	atomic.AddInt64(&s.successes, 1)
	s.log.Printf("synced with peer %s", peerID.String())
	return nil
}

func (s *service) handlePeerFound(pi peer.AddrInfo) {
	if pi.ID == s.host.ID() {
		return
	}

	s.peersMu.Lock()
	_, known := s.peers[pi.ID]
	s.peers[pi.ID] = struct{}{}
	s.peersMu.Unlock()
	if !known {
		s.log.Printf("discovered peer %s", pi.ID.String())
	}

	if err := s.host.Connect(s.ctx, pi); err != nil {
		s.peersMu.Lock()
		delete(s.peers, pi.ID)
		s.peersMu.Unlock()
		return
	}

	go func() {
		if err := s.SyncWith(s.ctx, pi.ID); err != nil {
			s.log.Printf("sync with %s failed: %v", pi.ID.String(), err)
		}
	}()
}

func (s *service) handleStream(stream network.Stream) {
	defer stream.Close()
	stream.SetDeadline(time.Now().Add(30 * time.Second))

	if !s.checkAllowlist(stream.Conn().RemotePeer()) {
		s.log.Printf("rejected stream from unauthorized peer %s", stream.Conn().RemotePeer())
		return
	}

	msg, err := readMessage(stream)
	if err != nil {
		return
	}

	var resp *Message
	switch msg.Type {
	case MsgDigests:
		ourDigests, err := s.localDigests()
		if err != nil {
			return
		}
		want := s.diverging(ourDigests, msg.Digests)
		if len(want) == 0 {
			resp = &Message{Type: MsgDigests, SessionID: msg.SessionID, Digests: ourDigests}
			break
		}
		dumps, kinds, err := s.buildDumps(want)
		if err != nil {
			return
		}
		resp = &Message{Type: MsgDumps, SessionID: msg.SessionID, Dumps: dumps, Kinds: kinds}

	case MsgWant:
		dumps, kinds, err := s.buildDumps(msg.WantNames)
		if err != nil {
			return
		}
		resp = &Message{Type: MsgDumps, SessionID: msg.SessionID, Dumps: dumps, Kinds: kinds}

	case MsgDumps:
		s.applyDumps(msg)
		ourDigests, err := s.localDigests()
		if err == nil {
			resp = &Message{Type: MsgDigests, SessionID: msg.SessionID, Digests: ourDigests}
		}
	}

	if resp != nil {
		writeMessage(stream, resp)
	}
}

func (s *service) syncLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			for _, p := range s.Peers() {
				p := p
				go func() {
					if err := s.SyncWith(s.ctx, p); err != nil {
						s.log.Printf("periodic sync with %s failed: %v", p.String(), err)
					}
				}()
			}
		}
	}
}

func (s *service) localDigests() (map[string][32]byte, error) {
	out := make(map[string][32]byte)
	for _, name := range s.hub.Views() {
		d, err := s.hub.Digest(name)
		if err != nil {
			return nil, fmt.Errorf("transport: digest %q: %w", name, err)
		}
		out[name] = d
	}
	return out, nil
}

// diverging returns the view names present in remote with a digest
// that disagrees with ours (or that we don't have locally at all).
func (s *service) diverging(ours, remote map[string][32]byte) []string {
	var want []string
	for name, rd := range remote {
		if od, ok := ours[name]; !ok || od != rd {
			want = append(want, name)
		}
	}
	return want
}

func (s *service) buildDumps(names []string) (map[string][]byte, map[string]string, error) {
	dumps := make(map[string][]byte)
	kinds := make(map[string]string)
	for _, name := range names {
		kind, err := s.hub.Kind(name)
		if err != nil {
			continue // view unknown to us; peer keeps its copy
		}
		dump, err := s.hub.Dump(name)
		if err != nil {
			return nil, nil, fmt.Errorf("transport: dump %q: %w", name, err)
		}
		dumps[name] = dump
		kinds[name] = kind
	}
	return dumps, kinds, nil
}

func (s *service) applyDumps(msg *Message) error {
	for name, dump := range msg.Dumps {
		kind := msg.Kinds[name]
		if err := s.hub.Load(name, kind, dump); err != nil {
			return fmt.Errorf("transport: load %q: %w", name, err)
		}
	}
	return nil
}

type mdnsNotifee struct{ s *service }

func (n mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) { n.s.handlePeerFound(pi) }

func writeMessage(w io.Writer, msg *Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func readMessage(r io.Reader) (*Message, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length > 10*1024*1024 {
		return nil, fmt.Errorf("transport: message too large: %d bytes", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return DecodeMessage(data)
}
