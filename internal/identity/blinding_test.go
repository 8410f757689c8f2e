package identity

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlindVersionKeyPair(t *testing.T) {
	id, err := FromSeed(seed(1))
	require.NoError(t, err)

	pub, sk, err := BlindVersionKeyPair(id.Ed25519)
	require.NoError(t, err)
	fromSeed, _, err := BlindVersionKeyPair(seed(1))
	require.NoError(t, err)
	assert.Equal(t, pub, fromSeed, "seed and full key blind the same")
	assert.Equal(t, pub, sk.Public())
	assert.NotEqual(t, id.Public(), pub)

	other, _, err := BlindVersionKeyPair(seed(2))
	require.NoError(t, err)
	assert.NotEqual(t, pub, other)

	_, _, err = BlindVersionKeyPair(make([]byte, 16))
	assert.Error(t, err)
}

func TestBlindVersionSign(t *testing.T) {
	sk := ed25519.NewKeyFromSeed(seed(3))
	pubHex, err := BlindVersionPubkey(sk)
	require.NoError(t, err)
	assert.Len(t, pubHex, 66)
	assert.Equal(t, PrefixBlindedVersion, pubHex[:2])

	sig, err := BlindVersionSign(sk, PlatformDesktop, 1700000000)
	require.NoError(t, err)
	require.Len(t, sig, ed25519.SignatureSize)

	assert.True(t, VerifyBlindedVersion(pubHex, PlatformDesktop, 1700000000, sig))
	assert.False(t, VerifyBlindedVersion(pubHex, PlatformDesktop, 1700000001, sig))
	assert.False(t, VerifyBlindedVersion(pubHex, PlatformIOS, 1700000000, sig))
	assert.False(t, VerifyBlindedVersion("05"+pubHex[2:], PlatformDesktop, 1700000000, sig))

	pub, _, err := BlindVersionKeyPair(sk)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, []byte("1700000000GET/session_version?platform=desktop"), sig))
}
