package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swarmsync/internal/engine"
)

func TestSealer_AdminSealsMembersOpen(t *testing.T) {
	f := newFixture(t)
	admin := f.adminRing(t)
	s := NewSealer(admin, engine.NamespaceGroupInfo)
	assert.False(t, s.CanSeal(), "no key yet")
	_, err := s.Seal([]byte("state"))
	assert.True(t, engine.IsMisuse(err))

	msg, err := admin.Rekey([]string{f.alice.SessionID()})
	require.NoError(t, err)
	require.True(t, s.CanSeal())
	sealed, err := s.Seal([]byte("state"))
	require.NoError(t, err)
	again, err := s.Seal([]byte("state"))
	require.NoError(t, err)
	assert.Equal(t, sealed, again, "sealing is deterministic")

	alice := f.memberRing(t, f.alice)
	require.True(t, alice.LoadKeyMessage("h", msg, 1))
	ms := NewSealer(alice, engine.NamespaceGroupInfo)
	assert.False(t, ms.CanSeal())
	plain, err := ms.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "state", string(plain))

	_, err = NewSealer(alice, engine.NamespaceGroupMembers).Open(sealed)
	assert.Error(t, err, "namespaces use separate keys")

	bad := append([]byte{}, sealed...)
	bad[0] ^= 1
	_, err = ms.Open(bad)
	assert.Error(t, err)
}

func TestSealer_OpensUnderOlderKey(t *testing.T) {
	f := newFixture(t)
	admin := f.adminRing(t)
	s := NewSealer(admin, engine.NamespaceGroupMembers)
	_, err := admin.Rekey(nil)
	require.NoError(t, err)
	old, err := s.Seal([]byte("v1"))
	require.NoError(t, err)
	_, err = admin.Rekey(nil)
	require.NoError(t, err)

	plain, err := s.Open(old)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(plain))
}
