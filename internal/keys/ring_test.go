package keys

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/identity"
	"github.com/roach88/swarmsync/internal/settings"
	"github.com/roach88/swarmsync/internal/testutil"
)

type fixture struct {
	group   ed25519.PrivateKey
	admin   identity.Identity
	alice   identity.Identity
	bob     identity.Identity
	clock   *testutil.WallClock
	limits  settings.Limits
	groupPk ed25519.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gk := testutil.GroupKey(1)
	return &fixture{
		group:   gk,
		admin:   testutil.Identity(t, 1),
		alice:   testutil.Identity(t, 2),
		bob:     testutil.Identity(t, 3),
		clock:   testutil.NewWallClock(time.Second),
		limits:  settings.Default(),
		groupPk: gk.Public().(ed25519.PublicKey),
	}
}

func (f *fixture) ring(t *testing.T, own identity.Ownership, self identity.Identity, dump []byte) *Ring {
	t.Helper()
	r, err := New(f.groupPk, own, self, dump, f.limits,
		WithNow(f.clock.Now), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return r
}

func (f *fixture) adminRing(t *testing.T) *Ring {
	return f.ring(t, identity.Owned{Secret: f.group}, f.admin, nil)
}

func (f *fixture) memberRing(t *testing.T, self identity.Identity) *Ring {
	return f.ring(t, identity.NotOwned{}, self, nil)
}

func TestRing_RekeyMonotonic(t *testing.T) {
	f := newFixture(t)
	admin := f.adminRing(t)
	active := []string{f.alice.SessionID()}

	var msgs [][]byte
	for i := 0; i < 3; i++ {
		msg, err := admin.Rekey(active)
		require.NoError(t, err)
		msgs = append(msgs, msg)
		gen, ok := admin.CurrentGeneration()
		require.True(t, ok)
		assert.Equal(t, uint64(i), gen)
	}

	alice := f.memberRing(t, f.alice)
	assert.True(t, alice.LoadKeyMessage("h2", msgs[2], 3000))
	assert.False(t, alice.LoadKeyMessage("h1", msgs[1], 2000), "older generation")
	gen, _ := alice.CurrentGeneration()
	assert.Equal(t, uint64(2), gen)
	assert.Equal(t, admin.GetAll()[0], alice.GetAll()[0])
	assert.Equal(t, []string{"h2"}, alice.CurrentHashes())
}

func TestRing_NonAdminMisuse(t *testing.T) {
	f := newFixture(t)
	alice := f.memberRing(t, f.alice)

	assert.False(t, alice.NeedsRekey(nil))
	_, err := alice.Rekey([]string{f.bob.SessionID()})
	assert.True(t, engine.IsMisuse(err))
	_, err = alice.GenerateSupplementKeys([]string{f.bob.SessionID()})
	assert.True(t, engine.IsMisuse(err))
	_, err = alice.EncryptMessages([][]byte{[]byte("hi")})
	assert.True(t, engine.IsMisuse(err), "no key yet")

	_, err = New(f.groupPk, identity.Owned{Secret: testutil.GroupKey(2)}, f.admin, nil, f.limits)
	assert.True(t, engine.IsInvalidInput(err), "secret of another group")
}

func TestRing_NeedsRekey(t *testing.T) {
	f := newFixture(t)
	admin := f.adminRing(t)
	both := []string{f.alice.SessionID(), f.bob.SessionID()}

	assert.True(t, admin.NeedsRekey(both), "no key yet")
	_, err := admin.Rekey(both)
	require.NoError(t, err)
	assert.False(t, admin.NeedsRekey(both))
	assert.False(t, admin.NeedsRekey(append(both, f.admin.SessionID())), "new members get supplement keys")
	assert.True(t, admin.NeedsRekey([]string{f.alice.SessionID()}), "bob was removed")

	_, err = admin.Rekey([]string{f.alice.SessionID()})
	require.NoError(t, err)
	assert.False(t, admin.NeedsRekey([]string{f.alice.SessionID()}))
}

func TestRing_RemovedMemberCannotReadNewKey(t *testing.T) {
	f := newFixture(t)
	admin := f.adminRing(t)
	_, err := admin.Rekey([]string{f.alice.SessionID(), f.bob.SessionID()})
	require.NoError(t, err)
	msg, err := admin.Rekey([]string{f.alice.SessionID()})
	require.NoError(t, err)

	bob := f.memberRing(t, f.bob)
	assert.False(t, bob.LoadKeyMessage("h", msg, 1))
	_, ok := bob.CurrentGeneration()
	assert.False(t, ok)

	alice := f.memberRing(t, f.alice)
	assert.True(t, alice.LoadKeyMessage("h", msg, 1))
}

func TestRing_DecryptTriesAllKeys(t *testing.T) {
	f := newFixture(t)
	f.limits.RetainedGenerations = 1
	admin := f.adminRing(t)
	active := []string{f.alice.SessionID()}

	_, err := admin.Rekey(active)
	require.NoError(t, err)
	sealed, err := admin.EncryptMessages([][]byte{[]byte("hello"), []byte("world")})
	require.NoError(t, err)
	require.Len(t, sealed, 2)

	_, err = admin.Rekey(active)
	require.NoError(t, err)
	got, ok := admin.DecryptMessage(sealed[0])
	require.True(t, ok, "generation 0 is still retained")
	assert.Equal(t, "hello", string(got.Plaintext))
	assert.Equal(t, f.admin.SessionID(), got.SenderID)

	_, err = admin.Rekey(active)
	require.NoError(t, err)
	assert.Len(t, admin.GetAll(), 2)
	_, ok = admin.DecryptMessage(sealed[1])
	assert.False(t, ok, "generation 0 was pruned")
}

func TestRing_DecryptRejectsTampering(t *testing.T) {
	f := newFixture(t)
	admin := f.adminRing(t)
	msg, err := admin.Rekey([]string{f.alice.SessionID()})
	require.NoError(t, err)
	sealed, err := admin.EncryptMessages([][]byte{[]byte("hello")})
	require.NoError(t, err)

	alice := f.memberRing(t, f.alice)
	require.True(t, alice.LoadKeyMessage("h", msg, 1))
	got, ok := alice.DecryptMessage(sealed[0])
	require.True(t, ok)
	assert.Equal(t, "hello", string(got.Plaintext))

	bad := append([]byte{}, sealed[0]...)
	bad[len(bad)-1] ^= 1
	_, ok = alice.DecryptMessage(bad)
	assert.False(t, ok)
	_, ok = alice.DecryptMessage([]byte("short"))
	assert.False(t, ok)
}

func TestRing_LoadKeyMessageRejects(t *testing.T) {
	f := newFixture(t)
	admin := f.adminRing(t)
	msg, err := admin.Rekey([]string{f.alice.SessionID()})
	require.NoError(t, err)

	alice := f.memberRing(t, f.alice)
	require.True(t, alice.LoadKeyMessage("h1", msg, 1))
	assert.False(t, alice.LoadKeyMessage("h1", msg, 1), "seen hash")
	assert.False(t, alice.LoadKeyMessage("h2", msg, 1), "key already held")
	assert.Equal(t, []string{"h1", "h2"}, alice.CurrentHashes())

	tampered := append([]byte{}, msg...)
	tampered[len(tampered)/2] ^= 0xff
	assert.False(t, alice.LoadKeyMessage("h3", tampered, 1))
	assert.False(t, alice.LoadKeyMessage("h4", []byte("junk"), 1))

	ring, err := New(testutil.GroupKey(2).Public().(ed25519.PublicKey), identity.NotOwned{}, f.alice, nil, f.limits)
	require.NoError(t, err)
	assert.False(t, ring.LoadKeyMessage("h1", msg, 1), "signed by another group")
}

func TestRing_ConcurrentSameGeneration(t *testing.T) {
	f := newFixture(t)
	active := []string{f.alice.SessionID()}
	a := f.adminRing(t)
	b := f.adminRing(t)
	ma, err := a.Rekey(active)
	require.NoError(t, err)
	mb, err := b.Rekey(active)
	require.NoError(t, err)

	assert.True(t, a.LoadKeyMessage("hb", mb, 5000))
	assert.Len(t, a.GetAll(), 2)
	assert.True(t, a.NeedsRekey(active), "two keys compete for generation 0")

	alice := f.memberRing(t, f.alice)
	assert.True(t, alice.LoadKeyMessage("ha", ma, 4000))
	assert.True(t, alice.LoadKeyMessage("hb", mb, 5000))
	assert.Equal(t, b.GetAll()[0], alice.GetAll()[0], "later timestamp sorts first")

	_, err = a.Rekey(active)
	require.NoError(t, err)
	gen, _ := a.CurrentGeneration()
	assert.Equal(t, uint64(1), gen)
	assert.False(t, a.NeedsRekey(active))
}

func TestRing_SupplementKeys(t *testing.T) {
	f := newFixture(t)
	f.limits.SupplementBatchSize = 2
	admin := f.adminRing(t)
	_, err := admin.Rekey([]string{f.alice.SessionID()})
	require.NoError(t, err)

	var newcomers []string
	for b := byte(10); b < 15; b++ {
		newcomers = append(newcomers, testutil.Identity(t, b).SessionID())
	}
	newcomers = append(newcomers, f.bob.SessionID())
	msgs, err := admin.GenerateSupplementKeys(newcomers)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
	gen, _ := admin.CurrentGeneration()
	assert.Equal(t, uint64(0), gen, "supplements keep the generation")
	assert.Contains(t, admin.Recipients(), f.bob.SessionID())

	bob := f.memberRing(t, f.bob)
	loaded := false
	for i, m := range msgs {
		if bob.LoadKeyMessage(string(rune('a'+i)), m, 1) {
			loaded = true
		}
	}
	require.True(t, loaded)
	assert.Equal(t, admin.GetAll(), bob.GetAll())

	_, err = admin.GenerateSupplementKeys([]string{"05nothex"})
	assert.True(t, engine.IsInvalidInput(err))
}

func TestRing_KeyExpiry(t *testing.T) {
	f := newFixture(t)
	f.limits.KeyExpiryDays = 1
	f.clock = testutil.NewWallClock(0)
	admin := f.adminRing(t)
	active := []string{f.alice.SessionID()}

	_, err := admin.Rekey(active)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = admin.Rekey(active)
	require.NoError(t, err)
	assert.Len(t, admin.GetAll(), 2)

	f.clock.Advance(48 * time.Hour)
	_, err = admin.Rekey(active)
	require.NoError(t, err)
	entries := admin.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(2), entries[0].Generation)
	assert.Equal(t, uint64(1), entries[1].Generation)
}

func TestRing_DumpRoundTrip(t *testing.T) {
	f := newFixture(t)
	admin := f.adminRing(t)
	_, err := admin.Rekey([]string{f.alice.SessionID()})
	require.NoError(t, err)
	pending, ok := admin.PendingConfig()
	require.True(t, ok)
	require.NotEmpty(t, pending)
	assert.True(t, admin.NeedsDump())

	admin.ConfirmPushed("h1")
	_, ok = admin.PendingConfig()
	assert.False(t, ok)

	dump, err := admin.Dump()
	require.NoError(t, err)
	assert.False(t, admin.NeedsDump())

	restored := f.ring(t, identity.Owned{Secret: f.group}, f.admin, dump)
	assert.Equal(t, admin.Entries(), restored.Entries())
	assert.Equal(t, []string{"h1"}, restored.CurrentHashes())
	assert.Equal(t, admin.Recipients(), restored.Recipients())
	assert.False(t, restored.NeedsRekey([]string{f.alice.SessionID()}))
	assert.False(t, restored.LoadKeyMessage("h1", pending, 1), "confirmed hash counts as seen")

	_, err = New(testutil.GroupKey(2).Public().(ed25519.PublicKey), identity.NotOwned{}, f.alice, dump, f.limits)
	assert.True(t, engine.IsInvalidInput(err))
}

func TestRing_LoadAdminKeysLater(t *testing.T) {
	f := newFixture(t)
	admin := f.adminRing(t)
	msg, err := admin.Rekey([]string{f.alice.SessionID()})
	require.NoError(t, err)

	alice := f.memberRing(t, f.alice)
	require.True(t, alice.LoadKeyMessage("h", msg, 1))
	assert.False(t, alice.IsAdmin())

	assert.True(t, engine.IsInvalidInput(alice.LoadAdminKeys(testutil.GroupKey(9))))
	require.NoError(t, alice.LoadAdminKeys(f.group))
	assert.True(t, alice.IsAdmin())
	assert.Empty(t, alice.Recipients())
	assert.False(t, alice.NeedsRekey([]string{f.alice.SessionID()}))
}
