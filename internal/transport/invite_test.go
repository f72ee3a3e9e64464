package transport

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p"
)

func TestCreateAndParseInvite(t *testing.T) {
	h, err := libp2p.New()
	if err != nil {
		t.Fatalf("create host: %v", err)
	}
	defer h.Close()

	invite, err := CreateInvite(h, 24*time.Hour)
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if invite.PeerID != h.ID().String() {
		t.Error("peer id mismatch")
	}
	if len(invite.Addresses) == 0 {
		t.Error("expected at least one address")
	}
	if invite.IsExpired() {
		t.Error("fresh invite should not be expired")
	}

	code, err := invite.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	parsed, err := ParseInvite(code)
	if err != nil {
		t.Fatalf("ParseInvite: %v", err)
	}
	if parsed.PeerID != invite.PeerID {
		t.Error("parsed peer id mismatch")
	}
}

func TestExpiredInviteIsRejected(t *testing.T) {
	h, err := libp2p.New()
	if err != nil {
		t.Fatalf("create host: %v", err)
	}
	defer h.Close()

	invite, err := CreateInvite(h, -time.Second)
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	code, err := invite.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := ParseInvite(code); err == nil {
		t.Error("expected an expired invite to be rejected")
	}
}

func TestTamperedSignatureIsRejected(t *testing.T) {
	h, err := libp2p.New()
	if err != nil {
		t.Fatalf("create host: %v", err)
	}
	defer h.Close()

	invite, err := CreateInvite(h, time.Hour)
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	invite.Addresses = append(invite.Addresses, "/ip4/10.0.0.1/tcp/1")
	code, err := invite.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := ParseInvite(code); err == nil {
		t.Error("expected a tampered invite to fail signature verification")
	}
}

func TestInviteQRGeneration(t *testing.T) {
	h, err := libp2p.New()
	if err != nil {
		t.Fatalf("create host: %v", err)
	}
	defer h.Close()

	invite, err := CreateInvite(h, 24*time.Hour)
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}

	png, err := invite.ToQR()
	if err != nil {
		t.Fatalf("ToQR: %v", err)
	}
	if len(png) == 0 {
		t.Error("expected non-empty QR PNG")
	}

	qrStr, err := invite.ToQRString()
	if err != nil {
		t.Fatalf("ToQRString: %v", err)
	}
	if len(qrStr) == 0 {
		t.Error("expected non-empty QR string")
	}
}
