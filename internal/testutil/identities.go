package testutil

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/swarmsync/internal/identity"
)

// Seed returns a 32-byte ed25519 seed filled with b.
func Seed(b byte) []byte {
	return bytes.Repeat([]byte{b}, ed25519.SeedSize)
}

// Identity returns the deterministic identity for seed byte b.
func Identity(t testing.TB, b byte) identity.Identity {
	t.Helper()
	id, err := identity.FromSeed(Seed(b))
	require.NoError(t, err)
	return id
}

// GroupKey returns a deterministic group signing key. Group seeds live in
// a separate range from user seeds so the two never collide.
func GroupKey(b byte) ed25519.PrivateKey {
	seed := Seed(b)
	seed[0] = 0xfe
	return ed25519.NewKeyFromSeed(seed)
}
