package convo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/settings"
	"github.com/roach88/swarmsync/internal/testutil"
)

var (
	user  = "05" + strings.Repeat("ab", 32)
	group = "03" + strings.Repeat("cd", 32)
	pk    = strings.Repeat("ef", 32)
)

func newConvo(t *testing.T, node string) *Convo {
	t.Helper()
	c, err := New(testutil.Identity(t, 1).Ed25519, nil, settings.Default(), engine.WithNodeID(node))
	require.NoError(t, err)
	return c
}

func TestConvo_LastReadOnlyMovesForward(t *testing.T) {
	c := newConvo(t, "dev-a")
	require.NoError(t, c.Set(KindOneToOne, user, 2000, true))
	require.NoError(t, c.Set(KindOneToOne, user, 1000, false))

	got, err := c.Get(KindOneToOne, user)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2000), got.LastRead)
	assert.False(t, got.Unread)
}

func TestConvo_KindsAreSeparate(t *testing.T) {
	c := newConvo(t, "dev-a")
	require.NoError(t, c.Set(KindGroup, group, 5, false))
	require.NoError(t, c.Set(KindLegacyGroup, user, 6, false))

	groups, err := c.GetAll(KindGroup)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, group, groups[0].ID)

	ones, err := c.GetAll(KindOneToOne)
	require.NoError(t, err)
	assert.Empty(t, ones)

	assert.True(t, engine.IsInvalidInput(c.Set(KindGroup, user, 1, false)), "group ids start with 03")
	_, err = c.GetAll(KindCommunity)
	assert.True(t, engine.IsMisuse(err))
}

func TestConvo_EraseKeepsLastRead(t *testing.T) {
	c := newConvo(t, "dev-a")
	require.NoError(t, c.Set(KindOneToOne, user, 900, true))

	ok, err := c.Erase(KindOneToOne, user)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := c.Get(KindOneToOne, user)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(KindOneToOne, user, 10, false))
	got, err = c.Get(KindOneToOne, user)
	require.NoError(t, err)
	assert.Equal(t, int64(900), got.LastRead)
}

func TestConvo_Communities(t *testing.T) {
	c := newConvo(t, "dev-a")
	require.NoError(t, c.SetCommunityByFullURL("https://example.org/Lobby?public_key="+pk, 42, true))

	got, err := c.GetCommunity("https://EXAMPLE.org/lobby")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Lobby", got.Room)
	assert.Equal(t, int64(42), got.LastRead)
	assert.Equal(t, "https://example.org/Lobby?public_key="+pk, got.ID)
	assert.Len(t, c.GetAllCommunities(), 1)

	assert.True(t, engine.IsInvalidInput(c.SetCommunityByFullURL("https://example.org/x", 1, false)))

	ok, err := c.EraseCommunityByFullURL("https://example.org/LOBBY")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, c.GetAllCommunities())
}

func TestConvo_ConcurrentReadsMerge(t *testing.T) {
	a := newConvo(t, "dev-a")
	b := newConvo(t, "dev-b")
	require.NoError(t, a.Set(KindOneToOne, user, 300, false))
	require.NoError(t, b.Set(KindOneToOne, user, 100, true))

	pa, err := a.Push()
	require.NoError(t, err)
	pb, err := b.Push()
	require.NoError(t, err)

	a.Merge([]engine.MergeRecord{{Hash: "hb", Data: pb.Data}})
	b.Merge([]engine.MergeRecord{{Hash: "ha", Data: pa.Data}})

	ga, err := a.Get(KindOneToOne, user)
	require.NoError(t, err)
	gb, err := b.Get(KindOneToOne, user)
	require.NoError(t, err)
	assert.Equal(t, int64(300), ga.LastRead)
	assert.Equal(t, *ga, *gb)
}
