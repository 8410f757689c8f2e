package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "dumps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	assert.Error(t, err)
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path)
	assert.ErrorContains(t, err, "newer than supported")
}

func TestOpen_MigratesV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE dumps (
			id TEXT NOT NULL PRIMARY KEY,
			kind TEXT NOT NULL,
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
		INSERT INTO dumps (id, kind, data, updated_at) VALUES ('old', 'contacts', x'01', 0);
		PRAGMA user_version = 1;
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	d, err := s.LoadDump(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.Revision)
}

func TestClose_MultipleCalls(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close(), "sql.DB tolerates a second close")

	var empty Store
	assert.NoError(t, empty.Close())
}

func TestPragmas(t *testing.T) {
	s := openTemp(t)
	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
	} {
		assert.NoError(t, s.verifyPragma(name, want))
	}
}

func TestDumps_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.LoadDump(ctx, "contacts:a")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.SaveDump(ctx, "contacts:a", "contacts", []byte{1, 2, 3}, at))
	d, err := s.LoadDump(ctx, "contacts:a")
	require.NoError(t, err)
	assert.Equal(t, Dump{ID: "contacts:a", Kind: "contacts", Data: []byte{1, 2, 3}, Revision: 1, UpdatedAt: at}, d)

	later := at.Add(time.Minute)
	require.NoError(t, s.SaveDump(ctx, "contacts:a", "contacts", []byte{4}, later))
	d, err = s.LoadDump(ctx, "contacts:a")
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, d.Data)
	assert.Equal(t, int64(2), d.Revision)
	assert.Equal(t, later, d.UpdatedAt)

	ok, err := s.DeleteDump(ctx, "contacts:a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.DeleteDump(ctx, "contacts:a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDumps_SaveRejectsEmpty(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	assert.Error(t, s.SaveDump(ctx, "x", "contacts", nil, time.Now()))
	assert.Error(t, s.SaveDump(ctx, "", "contacts", []byte{1}, time.Now()))
	assert.Error(t, s.SaveDump(ctx, "x", "", []byte{1}, time.Now()))
}

func TestDumps_List(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	at := time.UnixMilli(1000).UTC()

	list, err := s.ListDumps(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)

	require.NoError(t, s.SaveDump(ctx, "b", "profile", []byte{1, 2}, at))
	require.NoError(t, s.SaveDump(ctx, "a", "profile", []byte{1}, at))
	require.NoError(t, s.SaveDump(ctx, "c", "metagroup", []byte{1, 2, 3}, at))

	list, err = s.ListDumps(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, int64(3), list[0].Size)
	assert.Equal(t, "a", list[1].ID)
	assert.Equal(t, "b", list[2].ID)

	list, err = s.ListDumps(ctx, "profile")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
