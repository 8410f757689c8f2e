package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swarmsync/internal/store"
)

func seedStore(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "dumps.db")
	st, err := store.Open(db)
	require.NoError(t, err)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveDump(ctx, "phone/contacts", "contacts", []byte{1, 2, 3}, at))
	require.NoError(t, st.SaveDump(ctx, "phone/profile", "profile", []byte{4}, at))
	require.NoError(t, st.Close())
	return db
}

func TestDumps_List(t *testing.T) {
	db := seedStore(t)

	out, err := execute(t, "dumps", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "phone/contacts")
	assert.Contains(t, out, "phone/profile")

	out, err = execute(t, "dumps", "list", "--db", db, "--kind", "contacts", "--format", "json")
	require.NoError(t, err)
	var rows []DumpRow
	assert.Equal(t, "ok", decodeData(t, out, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, DumpRow{ID: "phone/contacts", Kind: "contacts", Size: 3, Revision: 1, UpdatedAt: "2024-01-01T00:00:00Z"}, rows[0])
}

func TestDumps_Delete(t *testing.T) {
	db := seedStore(t)

	out, err := execute(t, "dumps", "delete", "phone/profile", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted phone/profile")

	out, err = execute(t, "dumps", "delete", "phone/profile", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestDumps_RequiresDB(t *testing.T) {
	_, err := execute(t, "dumps", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
