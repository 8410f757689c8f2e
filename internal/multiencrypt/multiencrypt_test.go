package multiencrypt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/testutil"
)

const domain = "swarmsync-invite"

func TestEncrypt_OneMessageForAll(t *testing.T) {
	sender := testutil.Identity(t, 1)
	a, b, c := testutil.Identity(t, 2), testutil.Identity(t, 3), testutil.Identity(t, 4)

	enc, err := Encrypt(sender.Ed25519, domain, [][]byte{[]byte("welcome")}, [][32]byte{a.X25519Public, b.X25519Public})
	require.NoError(t, err)

	for _, r := range [][]byte{a.Ed25519, b.Ed25519} {
		plain, ok := DecryptEd25519(enc, r, sender.Public(), domain)
		require.True(t, ok)
		assert.Equal(t, "welcome", string(plain))
	}
	_, ok := DecryptEd25519(enc, c.Ed25519, sender.Public(), domain)
	assert.False(t, ok, "not a recipient")
	_, ok = DecryptEd25519(enc, a.Ed25519, c.Public(), domain)
	assert.False(t, ok, "wrong sender")
	_, ok = DecryptEd25519(enc, a.Ed25519, sender.Public(), "other-domain")
	assert.False(t, ok, "domain binds the key")
}

func TestEncrypt_PerRecipientMessages(t *testing.T) {
	sender := testutil.Identity(t, 1)
	a, b := testutil.Identity(t, 2), testutil.Identity(t, 3)
	enc, err := Encrypt(sender.Ed25519, domain,
		[][]byte{[]byte("for a"), []byte("for b")},
		[][32]byte{a.X25519Public, b.X25519Public})
	require.NoError(t, err)

	plain, ok := DecryptEd25519(enc, a.Ed25519, sender.Public(), domain)
	require.True(t, ok)
	assert.Equal(t, "for a", string(plain))
	plain, ok = DecryptEd25519(enc, b.Ed25519, sender.Public(), domain)
	require.True(t, ok)
	assert.Equal(t, "for b", string(plain))
}

func TestEncrypt_InvalidInput(t *testing.T) {
	sender := testutil.Identity(t, 1)
	a := testutil.Identity(t, 2)

	_, err := Encrypt(sender.Ed25519, domain, [][]byte{[]byte("x"), []byte("y")}, [][32]byte{a.X25519Public})
	assert.True(t, engine.IsInvalidInput(err))
	_, err = Encrypt(sender.Ed25519, "", [][]byte{[]byte("x")}, [][32]byte{a.X25519Public})
	assert.True(t, engine.IsInvalidInput(err))
	_, err = Encrypt(sender.Ed25519, strings.Repeat("d", MaxDomainLength+1), [][]byte{[]byte("x")}, [][32]byte{a.X25519Public})
	assert.True(t, engine.IsInvalidInput(err))
	_, err = Encrypt(sender.Ed25519[:10], domain, [][]byte{[]byte("x")}, [][32]byte{a.X25519Public})
	assert.True(t, engine.IsInvalidInput(err))

	_, ok := DecryptEd25519([]byte("junk"), a.Ed25519, sender.Public(), domain)
	assert.False(t, ok)
}
