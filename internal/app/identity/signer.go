package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// Signer produces hex DER ECDSA signatures over SHA-256 of a message. It is
// owned by the dispatcher and not safe for concurrent use with a shared rng.
type Signer struct {
	id       *Identity
	rng      io.Reader
	attempts int
}

func NewSigner(id *Identity, rng io.Reader, attempts int) (*Signer, error) {
	if id == nil || id.key == nil {
		return nil, errors.New("signer requires an identity")
	}
	if rng == nil {
		rng = rand.Reader
	}
	if attempts <= 0 {
		attempts = 1
	}
	return &Signer{id: id, rng: rng, attempts: attempts}, nil
}

// Sign hashes the UTF-8 bytes of message and signs with a fresh nonce.
func (s *Signer) Sign(message string) (string, error) {
	digest := sha256.Sum256([]byte(message))

	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		sig, err := ecdsa.SignASN1(s.rng, s.id.key, digest[:])
		if err == nil {
			return hex.EncodeToString(sig), nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("sign after %d attempts: %w", s.attempts, lastErr)
}

// Verify checks signatureHex over message. The public key may be PKIX DER,
// an uncompressed point, or raw X‖Y; the signature may be DER or raw r‖s.
func Verify(publicKeyHex, message, signatureHex string) error {
	pub, err := ParsePublicKeyHex(publicKeyHex)
	if err != nil {
		return err
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	digest := sha256.Sum256([]byte(message))

	if ecdsa.VerifyASN1(pub, digest[:], sig) {
		return nil
	}
	if len(sig) == 64 {
		r := new(big.Int).SetBytes(sig[:32])
		sVal := new(big.Int).SetBytes(sig[32:])
		if ecdsa.Verify(pub, digest[:], r, sVal) {
			return nil
		}
	}
	return ErrSignatureInvalid
}

// ParsePublicKeyHex accepts the encodings surfaced at provisioning.
func ParsePublicKeyHex(publicKeyHex string) (*ecdsa.PublicKey, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	switch len(raw) {
	case 64:
		raw = append([]byte{0x04}, raw...)
		fallthrough
	case 65:
		x, y := elliptic.Unmarshal(elliptic.P256(), raw)
		if x == nil {
			return nil, errors.New("public key is not a P-256 point")
		}
		return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P256() {
		return nil, errors.New("public key is not ECDSA P-256")
	}
	return pub, nil
}
