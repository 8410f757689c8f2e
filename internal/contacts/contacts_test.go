package contacts

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/ir"
	"github.com/roach88/swarmsync/internal/profilepic"
	"github.com/roach88/swarmsync/internal/settings"
	"github.com/roach88/swarmsync/internal/testutil"
)

var (
	idA = "05" + strings.Repeat("aa", 32)
	idB = "05" + strings.Repeat("bb", 32)
)

func newContacts(t *testing.T, node string) *Contacts {
	t.Helper()
	clock := testutil.NewWallClock(time.Second)
	c, err := New(testutil.Identity(t, 1).Ed25519, nil, settings.Default(),
		engine.WithNodeID(node), engine.WithNow(clock.Now))
	require.NoError(t, err)
	return c
}

func TestContacts_ApprovedSyncsWithoutDuplicates(t *testing.T) {
	a := newContacts(t, "dev-a")
	info, err := a.GetOrConstruct(idA)
	require.NoError(t, err)
	info.Approved = true
	require.NoError(t, a.Set(info))

	push, err := a.Push()
	require.NoError(t, err)
	assert.Equal(t, int64(1), push.Seqno)

	b := newContacts(t, "dev-b")
	hash := ir.MessageHash(push.Data)
	assert.Equal(t, []string{hash}, b.Merge([]engine.MergeRecord{{Hash: hash, Data: push.Data}}))
	b.Merge([]engine.MergeRecord{{Hash: hash, Data: push.Data}})

	all := b.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, idA, all[0].ID)
	assert.True(t, all[0].Approved)
	assert.Equal(t, testutil.Epoch.Unix(), all[0].CreatedAtSeconds)
}

func TestContacts_GetOrConstructDoesNotStore(t *testing.T) {
	c := newContacts(t, "dev-a")
	info, err := c.GetOrConstruct(idA)
	require.NoError(t, err)
	assert.Equal(t, ContactInfo{ID: idA, ExpirationMode: ExpirationOff}, info)

	got, err := c.Get(idA)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, c.GetAll())
	assert.False(t, c.NeedsPush())
}

func TestContacts_SetAllFields(t *testing.T) {
	c := newContacts(t, "dev-a")
	pic := &profilepic.Pic{URL: "https://example.org/p", Key: bytes.Repeat([]byte{2}, 32)}
	require.NoError(t, c.Set(ContactInfo{
		ID:               idB,
		Name:             "Bob",
		Nickname:         "Bobby",
		ApprovedMe:       true,
		Blocked:          true,
		Priority:         -1,
		CreatedAtSeconds: 1000,
		Pic:              pic,
		ExpirationMode:   ExpirationDeleteAfterSend,
		ExpirationTimer:  time.Hour,
	}))

	got, err := c.Get(idB)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Bob", got.Name)
	assert.Equal(t, "Bobby", got.Nickname)
	assert.True(t, got.ApprovedMe)
	assert.True(t, got.Blocked)
	assert.Equal(t, int64(-1), got.Priority)
	assert.Equal(t, int64(1000), got.CreatedAtSeconds)
	assert.Equal(t, pic, got.Pic)
	assert.Equal(t, ExpirationDeleteAfterSend, got.ExpirationMode)
	assert.Equal(t, time.Hour, got.ExpirationTimer)

	got.CreatedAtSeconds = 5000
	got.Nickname = ""
	got.Pic = nil
	require.NoError(t, c.Set(*got))
	again, err := c.Get(idB)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), again.CreatedAtSeconds, "creation time is write-once")
	assert.Empty(t, again.Nickname)
	assert.Nil(t, again.Pic)
}

func TestContacts_InvalidInput(t *testing.T) {
	c := newContacts(t, "dev-a")

	_, err := c.Get("05zz")
	assert.True(t, engine.IsInvalidInput(err))

	err = c.Set(ContactInfo{ID: idA, Name: strings.Repeat("n", 101)})
	assert.True(t, engine.IsInvalidInput(err))
	err = c.Set(ContactInfo{ID: idA, ExpirationMode: "legacy"})
	assert.True(t, engine.IsInvalidInput(err))
	err = c.Set(ContactInfo{ID: "03" + strings.Repeat("aa", 32)})
	assert.True(t, engine.IsInvalidInput(err))

	assert.Empty(t, c.GetAll())
}

func TestContacts_Erase(t *testing.T) {
	c := newContacts(t, "dev-a")
	require.NoError(t, c.Set(ContactInfo{ID: idA, Name: "Alice", CreatedAtSeconds: 10}))
	require.NoError(t, c.Set(ContactInfo{ID: idB, Name: "Bob"}))

	ok, err := c.Erase(idA)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Erase(idA)
	require.NoError(t, err)
	assert.False(t, ok)

	all := c.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, idB, all[0].ID)

	require.NoError(t, c.Set(ContactInfo{ID: idA}))
	got, err := c.Get(idA)
	require.NoError(t, err)
	assert.Empty(t, got.Name)
	assert.Equal(t, int64(10), got.CreatedAtSeconds)
}

func TestContacts_EraseSyncs(t *testing.T) {
	a := newContacts(t, "dev-a")
	b := newContacts(t, "dev-b")
	require.NoError(t, a.Set(ContactInfo{ID: idA, Name: "Alice"}))
	p1, err := a.Push()
	require.NoError(t, err)
	b.Merge([]engine.MergeRecord{{Hash: "h1", Data: p1.Data}})
	require.Len(t, b.GetAll(), 1)

	_, err = a.Erase(idA)
	require.NoError(t, err)
	p2, err := a.Push()
	require.NoError(t, err)
	b.Merge([]engine.MergeRecord{{Hash: "h2", Data: p2.Data}})
	assert.Empty(t, b.GetAll())
	assert.Equal(t, []string{"h2"}, b.CurrentHashes())
}
