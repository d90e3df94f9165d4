package identity

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/ghalamif/QuakeFlow/internal/adapters/kvstore"
	"github.com/ghalamif/QuakeFlow/internal/domain"
)

func newTestSigner(t *testing.T) (*Identity, *Signer) {
	t.Helper()
	id, _, err := Bootstrap(kvstore.NewMemStore(), nil)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	s, err := NewSigner(id, nil, 3)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return id, s
}

func TestSignVerifyRoundTrip(t *testing.T) {
	id, s := newTestSigner(t)

	for _, msg := range []string{
		domain.SigningMessage(250, 1700000000),
		domain.SigningMessage(0, 0),
		"unicode ✓ payload",
	} {
		sig, err := s.Sign(msg)
		if err != nil {
			t.Fatalf("sign %q: %v", msg, err)
		}
		if err := Verify(id.PublicKeyHex(), msg, sig); err != nil {
			t.Fatalf("verify with DER key %q: %v", msg, err)
		}
		if err := Verify(id.RawPublicKeyHex(), msg, sig); err != nil {
			t.Fatalf("verify with raw key %q: %v", msg, err)
		}
	}
}

func TestSignaturesUseFreshNonces(t *testing.T) {
	id, s := newTestSigner(t)
	msg := domain.SigningMessage(180, 1700000123)

	seen := make(map[string]struct{})
	for i := 0; i < 8; i++ {
		sig, err := s.Sign(msg)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, dup := seen[sig]; dup {
			t.Fatalf("signature repeated, nonce reuse suspected")
		}
		seen[sig] = struct{}{}
		if err := Verify(id.PublicKeyHex(), msg, sig); err != nil {
			t.Fatalf("verify: %v", err)
		}
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	id, s := newTestSigner(t)
	sig, err := s.Sign("250:1700000000")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := Verify(id.PublicKeyHex(), "251:1700000000", sig); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifyAcceptsRawSignatures(t *testing.T) {
	id, _ := newTestSigner(t)
	msg := "300:1700000500"
	digest := sha256.Sum256([]byte(msg))
	r, sVal, err := ecdsa.Sign(rand.Reader, id.key, digest[:])
	if err != nil {
		t.Fatalf("sign raw: %v", err)
	}
	raw := make([]byte, 64)
	r.FillBytes(raw[:32])
	sVal.FillBytes(raw[32:])

	if err := Verify(id.RawPublicKeyHex(), msg, hex.EncodeToString(raw)); err != nil {
		t.Fatalf("verify raw signature: %v", err)
	}
}

func TestNewSignerRequiresIdentity(t *testing.T) {
	if _, err := NewSigner(nil, nil, 1); err == nil {
		t.Fatalf("expected error without identity")
	}
}
