package transport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	qrcode "github.com/skip2/go-qrcode"
)

// InvitePrefix is the URL scheme for mview peer invites.
const InvitePrefix = "mview://"

// DefaultInviteExpiry is how long a generated invite remains valid.
const DefaultInviteExpiry = 24 * time.Hour

// PeerInvite carries everything a replica needs to dial and trust
// another replica's host, signed so a forwarded invite can't be
// tampered with in transit.
type PeerInvite struct {
	PeerID    string   `json:"p"`
	Addresses []string `json:"a"`
	PublicKey []byte   `json:"k"`
	CreatedAt int64    `json:"c"`
	ExpiresAt int64    `json:"e"`
	Signature []byte   `json:"s"`
}

// CreateInvite signs a fresh invite for h, valid for expiry.
func CreateInvite(h host.Host, expiry time.Duration) (*PeerInvite, error) {
	now := time.Now()

	addrs := h.Addrs()
	addrStrs := make([]string, 0, 2)
	for _, a := range addrs {
		s := a.String()
		if !strings.Contains(s, "127.0.0.1") && !strings.Contains(s, "::1") {
			addrStrs = append(addrStrs, s)
			if len(addrStrs) >= 2 {
				break
			}
		}
	}
	if len(addrStrs) == 0 && len(addrs) > 0 {
		addrStrs = append(addrStrs, addrs[0].String())
	}

	pubKey := h.Peerstore().PubKey(h.ID())
	if pubKey == nil {
		return nil, fmt.Errorf("transport: host has no public key")
	}
	pubKeyBytes, err := crypto.MarshalPublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal public key: %w", err)
	}

	invite := &PeerInvite{
		PeerID:    h.ID().String(),
		Addresses: addrStrs,
		PublicKey: pubKeyBytes,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(expiry).Unix(),
	}

	privKey := h.Peerstore().PrivKey(h.ID())
	if privKey == nil {
		return nil, fmt.Errorf("transport: host has no private key")
	}
	sig, err := privKey.Sign(invite.signableData())
	if err != nil {
		return nil, fmt.Errorf("transport: sign invite: %w", err)
	}
	invite.Signature = sig

	return invite, nil
}

func (i *PeerInvite) signableData() []byte {
	return []byte(fmt.Sprintf("%s|%s|%d|%d",
		i.PeerID, strings.Join(i.Addresses, ","), i.CreatedAt, i.ExpiresAt))
}

// Encode serializes the invite to a compact, URL-safe string.
func (i *PeerInvite) Encode() (string, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return "", err
	}
	return InvitePrefix + base64.RawURLEncoding.EncodeToString(data), nil
}

// ToMinimalCode returns a short human-typeable code: mview://id@addr.
func (i *PeerInvite) ToMinimalCode() string {
	addr := ""
	if len(i.Addresses) > 0 {
		addr = i.Addresses[0]
	}
	return fmt.Sprintf("%s%s@%s", InvitePrefix, i.PeerID, addr)
}

// ToQR renders the minimal invite code as a QR code PNG.
func (i *PeerInvite) ToQR() ([]byte, error) {
	return qrcode.Encode(i.ToMinimalCode(), qrcode.Low, 256)
}

// ToQRString renders the minimal invite code as a terminal-friendly
// ASCII QR code.
func (i *PeerInvite) ToQRString() (string, error) {
	qr, err := qrcode.New(i.ToMinimalCode(), qrcode.Low)
	if err != nil {
		return "", err
	}
	return qr.ToSmallString(false), nil
}

// ParseInvite decodes and verifies an invite string produced by Encode.
func ParseInvite(s string) (*PeerInvite, error) {
	if !strings.HasPrefix(s, InvitePrefix) {
		return nil, fmt.Errorf("transport: invite missing %q prefix", InvitePrefix)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(s, InvitePrefix))
	if err != nil {
		return nil, fmt.Errorf("transport: decode invite: %w", err)
	}

	var invite PeerInvite
	if err := json.Unmarshal(raw, &invite); err != nil {
		return nil, fmt.Errorf("transport: parse invite: %w", err)
	}

	if time.Now().Unix() > invite.ExpiresAt {
		return nil, fmt.Errorf("transport: invite expired")
	}

	pubKey, err := crypto.UnmarshalPublicKey(invite.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid invite public key: %w", err)
	}
	valid, err := pubKey.Verify(invite.signableData(), invite.Signature)
	if err != nil || !valid {
		return nil, fmt.Errorf("transport: invalid invite signature")
	}

	derivedID, err := peer.IDFromPublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("transport: derive peer id: %w", err)
	}
	if derivedID.String() != invite.PeerID {
		return nil, fmt.Errorf("transport: invite peer id mismatch")
	}

	return &invite, nil
}

// IsExpired reports whether the invite is past its expiry.
func (i *PeerInvite) IsExpired() bool {
	return time.Now().Unix() > i.ExpiresAt
}
