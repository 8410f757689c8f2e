package engine

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"
)

// Sealer protects payloads on the relay.
type Sealer interface {
	// Seal encrypts (and possibly signs) a plaintext payload.
	Seal(plaintext []byte) ([]byte, error)

	// Open reverses Seal, failing on tampering or a missing key.
	Open(sealed []byte) ([]byte, error)

	// CanSeal reports whether this device may produce new payloads.
	CanSeal() bool
}

const nonceSize = 24

// SecretboxSealer seals user-owned configs with XSalsa20-Poly1305.
//
// The nonce is a keyed hash of the plaintext, so sealing the same state
// twice yields the same ciphertext.
type SecretboxSealer struct {
	key [32]byte
}

// NewSecretboxSealer derives a per-namespace key from the owner's ed25519
// secret key.
func NewSecretboxSealer(secret ed25519.PrivateKey, ns Namespace) (*SecretboxSealer, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return nil, NewInvalidInputError("sealer", "ed25519 secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(secret))
	}
	h, err := blake2b.New256(secret.Seed())
	if err != nil {
		return nil, errors.Wrap(err, "init key derivation")
	}
	h.Write([]byte("swarmsync/config/v1"))
	var nsb [4]byte
	binary.BigEndian.PutUint32(nsb[:], uint32(ns))
	h.Write(nsb[:])

	s := &SecretboxSealer{}
	copy(s.key[:], h.Sum(nil))
	return s, nil
}

// Seal implements Sealer.
func (s *SecretboxSealer) Seal(plaintext []byte) ([]byte, error) {
	nonce, err := DeterministicNonce(s.key[:], plaintext)
	if err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// Open implements Sealer.
func (s *SecretboxSealer) Open(sealed []byte) ([]byte, error) {
	return OpenSecretbox(&s.key, sealed)
}

// CanSeal implements Sealer. The owner can always seal.
func (s *SecretboxSealer) CanSeal() bool {
	return true
}

// DeterministicNonce derives a 24-byte nonce from a key and the plaintext.
func DeterministicNonce(key, plaintext []byte) ([nonceSize]byte, error) {
	var nonce [nonceSize]byte
	h, err := blake2b.New(nonceSize, key)
	if err != nil {
		return nonce, errors.Wrap(err, "init nonce hash")
	}
	h.Write(plaintext)
	copy(nonce[:], h.Sum(nil))
	return nonce, nil
}

// OpenSecretbox opens nonce || box produced by Seal.
func OpenSecretbox(key *[32]byte, sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, errors.Newf("sealed payload too short: %d bytes", len(sealed))
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, errors.New("decryption failed")
	}
	return plain, nil
}
