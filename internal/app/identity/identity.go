// Package identity owns the device key pair: bootstrap from non-volatile
// storage, provisioning export, and payload signing.
package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/ghalamif/QuakeFlow/internal/ports"
)

// PrivateKeyName is the storage key of the SEC 1 DER private key.
const PrivateKeyName = "priv_key"

var (
	// ErrIdentityCorrupt means a stored key exists but cannot be used. The
	// device must not produce output until an operator intervenes.
	ErrIdentityCorrupt = errors.New("quakeflow: stored identity is corrupt")
	// ErrSignatureInvalid is returned by Verify on mismatch.
	ErrSignatureInvalid = errors.New("quakeflow: signature invalid")
)

// Identity is the device's ECDSA P-256 key pair.
type Identity struct {
	key *ecdsa.PrivateKey
}

// Bootstrap loads the persisted identity, or generates and persists one when
// the store holds no key. rng defaults to crypto/rand.
func Bootstrap(store ports.KVStore, rng io.Reader) (*Identity, bool, error) {
	if store == nil {
		return nil, false, errors.New("identity store is required")
	}
	if rng == nil {
		rng = rand.Reader
	}

	has, err := store.Has(PrivateKeyName)
	if err != nil {
		return nil, false, fmt.Errorf("identity store lookup: %w", err)
	}
	if has {
		der, err := store.Get(PrivateKeyName)
		if err != nil {
			return nil, false, fmt.Errorf("identity store read: %w", err)
		}
		id, err := Parse(der)
		if err != nil {
			return nil, false, err
		}
		return id, false, nil
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rng)
	if err != nil {
		return nil, false, fmt.Errorf("generate identity: %w", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, false, fmt.Errorf("marshal identity: %w", err)
	}
	if err := store.Put(PrivateKeyName, der); err != nil {
		return nil, false, fmt.Errorf("persist identity: %w", err)
	}
	return &Identity{key: key}, true, nil
}

// Parse decodes a SEC 1 DER private key and insists on P-256.
func Parse(der []byte) (*Identity, error) {
	if len(der) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrIdentityCorrupt)
	}
	key, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityCorrupt, err)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: curve %s", ErrIdentityCorrupt, key.Curve.Params().Name)
	}
	return &Identity{key: key}, nil
}

// PublicKeyHex is the hex-encoded PKIX (SubjectPublicKeyInfo) DER public key.
func (i *Identity) PublicKeyHex() string {
	der, err := x509.MarshalPKIXPublicKey(&i.key.PublicKey)
	if err != nil {
		// P-256 keys always marshal
		panic(err)
	}
	return hex.EncodeToString(der)
}

// RawPublicKeyHex is the hex-encoded X‖Y coordinate pair (64 bytes).
func (i *Identity) RawPublicKeyHex() string {
	pub, err := i.key.PublicKey.ECDH()
	if err != nil {
		panic(err)
	}
	// drop the 0x04 uncompressed-point prefix
	return hex.EncodeToString(pub.Bytes()[1:])
}

func (i *Identity) PublicKey() *ecdsa.PublicKey {
	return &i.key.PublicKey
}
