// Package identity derives user and group identities from ed25519 keys.
//
// A user's public id is "05" followed by the hex x25519 key that corresponds
// to their ed25519 key. A group's id is "03" followed by its hex ed25519
// public key.
package identity

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/hex"
	"strings"

	"filippo.io/edwards25519"
	"filippo.io/edwards25519/field"
	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/curve25519"
)

// Id prefixes.
const (
	PrefixSession = "05"
	PrefixGroup   = "03"
)

// ErrInvalidID is returned for malformed session or group ids.
var ErrInvalidID = errors.New("invalid id")

// Identity is a user's signing and key-agreement key pair.
type Identity struct {
	Ed25519       ed25519.PrivateKey
	X25519Private [32]byte
	X25519Public  [32]byte
}

// FromPrivateKey derives the x25519 half from a 64-byte ed25519 key.
func FromPrivateKey(sk ed25519.PrivateKey) (Identity, error) {
	if len(sk) != ed25519.PrivateKeySize {
		return Identity{}, errors.Newf("ed25519 secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(sk))
	}
	id := Identity{Ed25519: sk}
	h := sha512.Sum512(sk.Seed())
	copy(id.X25519Private[:], h[:32])
	id.X25519Private[0] &= 248
	id.X25519Private[31] &= 127
	id.X25519Private[31] |= 64

	pub, err := curve25519.X25519(id.X25519Private[:], curve25519.Basepoint)
	if err != nil {
		return Identity{}, errors.Wrap(err, "derive x25519 public key")
	}
	copy(id.X25519Public[:], pub)
	return id, nil
}

// FromSeed derives an identity from a 32-byte ed25519 seed.
func FromSeed(seed []byte) (Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return Identity{}, errors.Newf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return FromPrivateKey(ed25519.NewKeyFromSeed(seed))
}

// Public returns the ed25519 public key.
func (i Identity) Public() ed25519.PublicKey {
	return i.Ed25519.Public().(ed25519.PublicKey)
}

// SessionID returns the "05"-prefixed hex id.
func (i Identity) SessionID() string {
	return PrefixSession + hex.EncodeToString(i.X25519Public[:])
}

// X25519FromEd25519 maps an ed25519 public key to its x25519 counterpart.
func X25519FromEd25519(pub ed25519.PublicKey) ([32]byte, error) {
	var out [32]byte
	p, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return out, errors.Wrap(err, "decode ed25519 point")
	}
	copy(out[:], p.BytesMontgomery())
	return out, nil
}

// SessionIDFromEd25519 returns the session id owning an ed25519 public key.
func SessionIDFromEd25519(pub ed25519.PublicKey) (string, error) {
	x, err := X25519FromEd25519(pub)
	if err != nil {
		return "", err
	}
	return PrefixSession + hex.EncodeToString(x[:]), nil
}

// EdwardsFromX25519 recovers the ed25519 point whose Montgomery form is u,
// choosing the representative with a clear sign bit.
func EdwardsFromX25519(u [32]byte) (*edwards25519.Point, error) {
	fu, err := new(field.Element).SetBytes(u[:])
	if err != nil {
		return nil, errors.Wrap(err, "decode x25519 key")
	}
	one := new(field.Element).One()
	den := new(field.Element).Add(fu, one)
	if den.Equal(new(field.Element).Zero()) == 1 {
		return nil, errors.Mark(errors.New("x25519 key has no edwards form"), ErrInvalidID)
	}
	num := new(field.Element).Subtract(fu, one)
	y := new(field.Element).Multiply(num, new(field.Element).Invert(den))

	p, err := new(edwards25519.Point).SetBytes(y.Bytes())
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "x25519 key is not on the curve"), ErrInvalidID)
	}
	return p, nil
}

// ParseSessionID validates a "05" id and returns its x25519 key.
func ParseSessionID(id string) ([32]byte, error) {
	return parsePrefixed(id, PrefixSession)
}

// ParseGroupID validates a "03" id and returns the group ed25519 key.
func ParseGroupID(id string) (ed25519.PublicKey, error) {
	raw, err := parsePrefixed(id, PrefixGroup)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(raw[:]), nil
}

// GroupID formats a group ed25519 public key as a "03" id.
func GroupID(pub ed25519.PublicKey) string {
	return PrefixGroup + hex.EncodeToString(pub)
}

// IsSessionID reports whether id is a well-formed "05" id.
func IsSessionID(id string) bool {
	_, err := ParseSessionID(id)
	return err == nil
}

func parsePrefixed(id, prefix string) ([32]byte, error) {
	var out [32]byte
	if len(id) != 66 || !strings.HasPrefix(id, prefix) {
		return out, errors.Mark(errors.Newf("%q is not a %s-prefixed 33 byte hex id", id, prefix), ErrInvalidID)
	}
	if strings.ToLower(id) != id {
		return out, errors.Mark(errors.Newf("%q must be lowercase hex", id), ErrInvalidID)
	}
	raw, err := hex.DecodeString(id[2:])
	if err != nil {
		return out, errors.Mark(errors.Wrapf(err, "decode %q", id), ErrInvalidID)
	}
	copy(out[:], raw)
	return out, nil
}
