package core

// Key encapsulation for delivering a symmetric key to a specific reader
// (spec.md §6, DOMAIN STACK). The pack carries no classic NTRU-HPS
// implementation; circl's ML-KEM (Kyber) fills the same role — a KEM with
// Encapsulate/Decapsulate over a public/private keypair — and is
// documented in DESIGN.md as a named substitution, not a fabricated
// dependency.

import (
	"fmt"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/schemes"
)

// KemScheme names a supported key-encapsulation scheme.
type KemScheme string

const (
	KemMLKEM768 KemScheme = "ML-KEM-768"
)

func (s KemScheme) resolve() (kem.Scheme, error) {
	scheme := schemes.ByName(string(s))
	if scheme == nil {
		return nil, fmt.Errorf("%w: unknown kem scheme %q", ErrInvalidFormat, s)
	}
	return scheme, nil
}

// GenerateKemKeyPair creates a fresh KEM keypair for the given scheme.
func GenerateKemKeyPair(s KemScheme) (KemKeyPair, error) {
	scheme, err := s.resolve()
	if err != nil {
		return KemKeyPair{}, err
	}
	pub, priv, err := scheme.GenerateKeyPair()
	if err != nil {
		return KemKeyPair{}, fmt.Errorf("generate %s keypair: %w", s, err)
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return KemKeyPair{}, fmt.Errorf("marshal kem public key: %w", err)
	}
	privBytes, err := priv.MarshalBinary()
	if err != nil {
		return KemKeyPair{}, fmt.Errorf("marshal kem private key: %w", err)
	}
	return KemKeyPair{PublicKey: pubBytes, PrivateKey: privBytes}, nil
}

// EncapsulateSymmetricKey wraps a fresh symmetric key for delivery to the
// holder of the private key matching pubBytes, returning the wire
// ciphertext and the shared secret to use as the AES key.
func EncapsulateSymmetricKey(s KemScheme, pubBytes []byte) (ciphertext []byte, secret []byte, err error) {
	scheme, err := s.resolve()
	if err != nil {
		return nil, nil, err
	}
	pub, err := scheme.UnmarshalBinaryPublicKey(pubBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("unmarshal kem public key: %w", err)
	}
	ct, ss, err := scheme.Encapsulate(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("encapsulate: %w", err)
	}
	return ct, ss, nil
}

// DecapsulateSymmetricKey recovers the shared secret from a ciphertext
// produced by EncapsulateSymmetricKey, using the recipient's private key.
func DecapsulateSymmetricKey(s KemScheme, privBytes, ciphertext []byte) ([]byte, error) {
	scheme, err := s.resolve()
	if err != nil {
		return nil, err
	}
	priv, err := scheme.UnmarshalBinaryPrivateKey(privBytes)
	if err != nil {
		return nil, fmt.Errorf("unmarshal kem private key: %w", err)
	}
	ss, err := scheme.Decapsulate(priv, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decapsulate: %w", err)
	}
	return ss, nil
}
