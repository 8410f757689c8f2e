package identity

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(b byte) []byte {
	return bytes.Repeat([]byte{b}, ed25519.SeedSize)
}

func TestFromSeed_SessionIDMatchesEd25519(t *testing.T) {
	id, err := FromSeed(seed(1))
	require.NoError(t, err)

	fromEd, err := SessionIDFromEd25519(id.Public())
	require.NoError(t, err)

	assert.Equal(t, id.SessionID(), fromEd, "x25519 derived from the seed must match the Montgomery form of the public key")
	assert.Len(t, id.SessionID(), 66)
	assert.True(t, IsSessionID(id.SessionID()))
}

func TestFromPrivateKey_WrongLength(t *testing.T) {
	_, err := FromPrivateKey(make([]byte, 32))
	assert.Error(t, err)
}

func TestEdwardsFromX25519_RoundTrip(t *testing.T) {
	for b := byte(1); b < 8; b++ {
		id, err := FromSeed(seed(b))
		require.NoError(t, err)

		p, err := EdwardsFromX25519(id.X25519Public)
		require.NoError(t, err)

		pub := id.Public()
		want := append([]byte(nil), pub...)
		want[31] &= 0x7f
		assert.Equal(t, want, p.Bytes(), "recovered point equals the public key up to sign")
	}
}

func TestParseSessionID(t *testing.T) {
	id, err := FromSeed(seed(2))
	require.NoError(t, err)

	x, err := ParseSessionID(id.SessionID())
	require.NoError(t, err)
	assert.Equal(t, id.X25519Public, x)

	bad := []string{
		"",
		"05",
		"03" + id.SessionID()[2:],
		"05" + "ZZ" + id.SessionID()[4:],
		"05" + "AA" + id.SessionID()[4:],
	}
	for _, s := range bad {
		_, err := ParseSessionID(s)
		assert.True(t, errors.Is(err, ErrInvalidID), "input %q", s)
	}
}

func TestGroupID_RoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	parsed, err := ParseGroupID(GroupID(pub))
	require.NoError(t, err)
	assert.Equal(t, pub, parsed)
}

func TestOwnership(t *testing.T) {
	_, sk, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	secret, ok := AdminSecret(Owned{Secret: sk})
	assert.True(t, ok)
	assert.Equal(t, sk, secret)

	_, ok = AdminSecret(NotOwned{})
	assert.False(t, ok)

	_, ok = AdminSecret(nil)
	assert.False(t, ok)

	_, ok = AdminSecret(Owned{Secret: sk[:10]})
	assert.False(t, ok)
}
