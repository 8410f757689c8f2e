package groupinfo

import (
	"bytes"
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/identity"
	"github.com/roach88/swarmsync/internal/keys"
	"github.com/roach88/swarmsync/internal/profilepic"
	"github.com/roach88/swarmsync/internal/settings"
	"github.com/roach88/swarmsync/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

// groupRings returns an admin ring holding a key and a member ring that
// loaded it.
func groupRings(t *testing.T) (*keys.Ring, *keys.Ring) {
	t.Helper()
	gk := testutil.GroupKey(1)
	member := testutil.Identity(t, 2)
	admin, err := keys.New(gk.Public().(ed25519.PublicKey), identity.Owned{Secret: gk}, testutil.Identity(t, 1), nil, settings.Default())
	require.NoError(t, err)
	msg, err := admin.Rekey([]string{member.SessionID()})
	require.NoError(t, err)
	m, err := keys.New(gk.Public().(ed25519.PublicKey), identity.NotOwned{}, member, nil, settings.Default())
	require.NoError(t, err)
	require.True(t, m.LoadKeyMessage("k1", msg, 1))
	return admin, m
}

func newInfo(t *testing.T, r *keys.Ring, node string) *GroupInfo {
	t.Helper()
	g, err := New(keys.NewSealer(r, engine.NamespaceGroupInfo), nil, settings.Default(), engine.WithNodeID(node))
	require.NoError(t, err)
	return g
}

func TestGroupInfo_SetAndSync(t *testing.T) {
	adminRing, memberRing := groupRings(t)
	admin := newInfo(t, adminRing, "admin")
	pic := &profilepic.Pic{URL: "https://example.org/g", Key: bytes.Repeat([]byte{1}, 32)}

	require.NoError(t, admin.Set(Update{
		Name:             ptr("Hikers"),
		Description:      ptr("Weekend trips"),
		CreatedAtSeconds: ptr(int64(100)),
		ExpirySeconds:    ptr(int64(3600)),
		Pic:              pic,
	}))
	p, err := admin.Push()
	require.NoError(t, err)
	assert.Equal(t, engine.NamespaceGroupInfo, p.Namespace)

	member := newInfo(t, memberRing, "member")
	assert.Equal(t, []string{"h1"}, member.Merge([]engine.MergeRecord{{Hash: "h1", Data: p.Data}}))
	got := member.Get()
	assert.Equal(t, "Hikers", got.Name)
	assert.Equal(t, "Weekend trips", got.Description)
	assert.Equal(t, int64(100), got.CreatedAtSeconds)
	assert.Equal(t, int64(3600), got.ExpirySeconds)
	assert.Equal(t, pic, got.Pic)
	assert.False(t, got.Destroyed)

	assert.False(t, member.NeedsPush(), "members never push group info")
	assert.True(t, engine.IsMisuse(member.Set(Update{Name: ptr("mine")})))
}

func TestGroupInfo_MonotonicFields(t *testing.T) {
	adminRing, _ := groupRings(t)
	g := newInfo(t, adminRing, "admin")
	require.NoError(t, g.Set(Update{
		CreatedAtSeconds:    ptr(int64(50)),
		DeleteBeforeSeconds: ptr(int64(900)),
	}))
	require.NoError(t, g.Set(Update{
		CreatedAtSeconds:          ptr(int64(10)),
		DeleteBeforeSeconds:       ptr(int64(300)),
		DeleteAttachBeforeSeconds: ptr(int64(700)),
	}))

	got := g.Get()
	assert.Equal(t, int64(50), got.CreatedAtSeconds)
	assert.Equal(t, int64(900), got.DeleteBeforeSeconds)
	assert.Equal(t, int64(700), got.DeleteAttachBeforeSeconds)
}

func TestGroupInfo_Validation(t *testing.T) {
	adminRing, _ := groupRings(t)
	g := newInfo(t, adminRing, "admin")
	require.NoError(t, g.Set(Update{Name: ptr("ok")}))

	assert.True(t, engine.IsInvalidInput(g.Set(Update{Name: ptr(strings.Repeat("n", 101))})))
	assert.True(t, engine.IsInvalidInput(g.Set(Update{Description: ptr(strings.Repeat("d", 2001))})))
	assert.True(t, engine.IsInvalidInput(g.Set(Update{Name: ptr("new"), ExpirySeconds: ptr(int64(-1))})))
	assert.True(t, engine.IsInvalidInput(g.Set(Update{Pic: &profilepic.Pic{URL: "u", Key: []byte{1}}})))
	assert.Equal(t, "ok", g.Get().Name, "failed updates write nothing")

	require.NoError(t, g.Set(Update{Name: ptr("")}))
	assert.Empty(t, g.Get().Name)
}

func TestGroupInfo_DestroyWinsMerge(t *testing.T) {
	adminRing, _ := groupRings(t)
	a := newInfo(t, adminRing, "admin-a")
	b := newInfo(t, adminRing, "admin-b")

	require.NoError(t, a.Destroy())
	require.NoError(t, b.Set(Update{Name: ptr("still here")}))
	pa, err := a.Push()
	require.NoError(t, err)
	pb, err := b.Push()
	require.NoError(t, err)

	a.Merge([]engine.MergeRecord{{Hash: "hb", Data: pb.Data}})
	b.Merge([]engine.MergeRecord{{Hash: "ha", Data: pa.Data}})
	assert.True(t, a.IsDestroyed())
	assert.True(t, b.Get().Destroyed)
	assert.Equal(t, "still here", a.Get().Name)

	da, err := a.StateDigest()
	require.NoError(t, err)
	db, err := b.StateDigest()
	require.NoError(t, err)
	assert.Equal(t, da, db)
}
