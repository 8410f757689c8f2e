package profile

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/ir"
	"github.com/roach88/swarmsync/internal/profilepic"
	"github.com/roach88/swarmsync/internal/settings"
	"github.com/roach88/swarmsync/internal/testutil"
)

func newProfile(t *testing.T, node string, dump []byte) *Profile {
	t.Helper()
	id := testutil.Identity(t, 1)
	p, err := New(id.Ed25519, dump, settings.Default(), engine.WithNodeID(node))
	require.NoError(t, err)
	return p
}

func TestProfile_SetAndGet(t *testing.T) {
	p := newProfile(t, "dev-1", nil)
	assert.Equal(t, Info{}, p.GetUserInfo())

	pic := &profilepic.Pic{URL: "http://example.org/pic", Key: bytes.Repeat([]byte{1}, 32)}
	require.NoError(t, p.SetUserInfo("Alice", 2, pic))

	info := p.GetUserInfo()
	assert.Equal(t, "Alice", info.Name)
	assert.Equal(t, int64(2), info.Priority)
	assert.Equal(t, pic, info.Pic)
	assert.True(t, p.NeedsPush())

	require.NoError(t, p.SetUserInfo("Alice", 2, nil))
	assert.Nil(t, p.GetUserInfo().Pic)
}

func TestProfile_NameNormalizedAndLimited(t *testing.T) {
	p := newProfile(t, "dev-1", nil)

	require.NoError(t, p.SetUserInfo("Cafe\u0301", 0, nil))
	assert.Equal(t, "Caf\u00e9", p.GetUserInfo().Name)

	err := p.SetUserInfo(strings.Repeat("x", 101), 0, nil)
	assert.True(t, engine.IsInvalidInput(err))
	assert.Equal(t, "Caf\u00e9", p.GetUserInfo().Name, "a rejected write leaves state unchanged")

	longURL := &profilepic.Pic{URL: strings.Repeat("u", 224), Key: make([]byte, 32)}
	assert.True(t, engine.IsInvalidInput(p.SetUserInfo("Bob", 0, longURL)))
	assert.Equal(t, "Caf\u00e9", p.GetUserInfo().Name)
}

func TestProfile_BlindedMsgRequest(t *testing.T) {
	p := newProfile(t, "dev-1", nil)
	_, ok := p.GetEnableBlindedMsgRequest()
	assert.False(t, ok)

	require.NoError(t, p.SetEnableBlindedMsgRequest(true))
	enabled, ok := p.GetEnableBlindedMsgRequest()
	assert.True(t, ok)
	assert.True(t, enabled)
}

func TestProfile_SyncBetweenDevices(t *testing.T) {
	a := newProfile(t, "dev-a", nil)
	b := newProfile(t, "dev-b", nil)

	require.NoError(t, a.SetUserInfo("Alice", 1, nil))
	push, err := a.Push()
	require.NoError(t, err)
	hash := ir.MessageHash(push.Data)
	a.ConfirmPushed(push.Seqno, hash)

	applied := b.Merge([]engine.MergeRecord{{Hash: hash, Data: push.Data}})
	assert.Equal(t, []string{hash}, applied)
	assert.Equal(t, "Alice", b.GetUserInfo().Name)
	assert.Equal(t, a.CurrentHashes(), b.CurrentHashes())
	assert.False(t, b.NeedsPush())

	dump, err := b.Dump()
	require.NoError(t, err)
	c := newProfile(t, "dev-b", dump)
	assert.Equal(t, "Alice", c.GetUserInfo().Name)
}

func TestProfile_OtherUserCannotRead(t *testing.T) {
	a := newProfile(t, "dev-a", nil)
	require.NoError(t, a.SetUserInfo("Alice", 1, nil))
	push, err := a.Push()
	require.NoError(t, err)

	other, err := New(testutil.Identity(t, 2).Ed25519, nil, settings.Default())
	require.NoError(t, err)
	assert.Empty(t, other.Merge([]engine.MergeRecord{{Hash: "h", Data: push.Data}}))
}
