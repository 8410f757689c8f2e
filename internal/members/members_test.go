package members

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
	idA = "05" + strings.Repeat("aa", 32)
	idB = "05" + strings.Repeat("bb", 32)
	idC = "05" + strings.Repeat("cc", 32)
)

func newMembers(t *testing.T, node string) *Members {
	t.Helper()
	sealer, err := engine.NewSecretboxSealer(testutil.GroupKey(1), engine.NamespaceGroupMembers)
	require.NoError(t, err)
	m, err := New(sealer, nil, settings.Default(), engine.WithNodeID(node))
	require.NoError(t, err)
	return m
}

func TestMembers_GetOrConstructDefaults(t *testing.T) {
	m := newMembers(t, "dev-a")
	got, err := m.GetOrConstruct(idB)
	require.NoError(t, err)
	assert.Equal(t, Member{PubkeyHex: idB, InvitePending: true, Admin: false, RemovedStatus: Active}, got)

	stored, err := m.Get(idB)
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.False(t, m.NeedsPush())
}

func TestMembers_Lifecycle(t *testing.T) {
	m := newMembers(t, "dev-a")
	require.NoError(t, m.SetName(idA, "Alice"))
	got, err := m.Get(idA)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.InvitePending, "setters construct an invited member")
	assert.Equal(t, "Alice", got.Name)

	require.NoError(t, m.SetInvited(idA, true))
	got, _ = m.Get(idA)
	assert.False(t, got.InvitePending)
	assert.True(t, got.InviteFailed)

	require.NoError(t, m.SetInvited(idA, false))
	require.NoError(t, m.SetAccepted(idA))
	got, _ = m.Get(idA)
	assert.False(t, got.InvitePending)
	assert.False(t, got.InviteFailed)

	require.NoError(t, m.SetPromoted(idA, false))
	got, _ = m.Get(idA)
	assert.True(t, got.PromotionPending)
	assert.False(t, got.Admin)

	require.NoError(t, m.SetPromoted(idA, true))
	got, _ = m.Get(idA)
	assert.True(t, got.PromotionFailed)
	assert.False(t, got.PromotionPending)

	require.NoError(t, m.SetAdmin(idA, true))
	got, _ = m.Get(idA)
	assert.True(t, got.Admin)
	assert.True(t, got.Promoted)
	assert.False(t, got.PromotionFailed)
	assert.Equal(t, "Alice", got.Name)
}

func TestMembers_PendingRemoval(t *testing.T) {
	m := newMembers(t, "dev-a")
	for _, id := range []string{idA, idB, idC} {
		require.NoError(t, m.SetAccepted(id))
	}
	require.NoError(t, m.MarkPendingRemoval([]string{idC}, true))
	require.NoError(t, m.MarkPendingRemoval([]string{idB}, false))

	assert.Equal(t, []string{idA}, m.ActiveMemberIDs())
	pending := m.GetAllPendingRemovals()
	require.Len(t, pending, 2)
	assert.Equal(t, idB, pending[0].PubkeyHex)
	assert.Equal(t, Removed, pending[0].RemovedStatus)
	assert.Equal(t, RemovedWithMessages, pending[1].RemovedStatus)

	n, err := m.Erase([]string{idC, idC, idB})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = m.Erase([]string{idC})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, m.GetAllPendingRemovals())
	assert.Len(t, m.GetAll(), 1)
}

func TestMembers_InvalidInput(t *testing.T) {
	m := newMembers(t, "dev-a")
	assert.True(t, engine.IsInvalidInput(m.SetName("05zz", "x")))
	assert.True(t, engine.IsInvalidInput(m.SetName(idA, strings.Repeat("x", 101))))
	assert.True(t, engine.IsInvalidInput(m.MarkPendingRemoval([]string{idA, "bad"}, false)))
	assert.True(t, engine.IsInvalidInput(m.Set(Member{PubkeyHex: idA, RemovedStatus: 7})))
	_, err := m.Erase([]string{"bad"})
	assert.True(t, engine.IsInvalidInput(err))
	assert.Empty(t, m.GetAll(), "nothing was written")
}

func TestMembers_MergeAcrossAdmins(t *testing.T) {
	a := newMembers(t, "dev-a")
	b := newMembers(t, "dev-b")
	require.NoError(t, a.SetAdmin(idA, true))
	require.NoError(t, b.SetName(idB, "Bob"))
	require.NoError(t, b.MarkPendingRemoval([]string{idC}, false))

	pa, err := a.Push()
	require.NoError(t, err)
	pb, err := b.Push()
	require.NoError(t, err)
	a.Merge([]engine.MergeRecord{{Hash: "hb", Data: pb.Data}})
	b.Merge([]engine.MergeRecord{{Hash: "ha", Data: pa.Data}})

	assert.Equal(t, a.GetAll(), b.GetAll())
	assert.Equal(t, []string{idA, idB}, a.ActiveMemberIDs())
	assert.True(t, a.NeedsPush(), "merged state is newer than either record")
}
