package cli

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swarmsync/internal/store"
	"github.com/roach88/swarmsync/internal/testutil"
)

func invokeArgs(db string, extra ...string) []string {
	args := []string{"invoke", "--db", db, "--seed", hex.EncodeToString(testutil.Seed(1)), "--target", "contacts"}
	return append(args, extra...)
}

func TestInvoke_SetThenGet(t *testing.T) {
	db := filepath.Join(t.TempDir(), "dumps.db")
	bob := testutil.Identity(t, 2).SessionID()

	out, err := execute(t, invokeArgs(db, "contacts.set", "--args", `{"id":"`+bob+`","name":"Bob","approved":true}`)...)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	out, err = execute(t, invokeArgs(db, "contacts.get", "--args", `{"id":"`+bob+`"}`)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"Name": "Bob"`)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	d, err := st.LoadDump(context.Background(), testutil.Identity(t, 1).SessionID()+"/contacts")
	require.NoError(t, err)
	assert.Equal(t, "contacts", d.Kind)
	assert.Equal(t, int64(1), d.Revision, "reads do not rewrite the dump")
}

func TestInvoke_InvalidInputJSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "dumps.db")
	out, err := execute(t, invokeArgs(db, "contacts.set", "--args", `{"id":"05zz"}`, "--format", "json")...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "error", decodeData(t, out, nil))
	assert.Contains(t, out, ErrCodeInvalidInput)
}

func TestInvoke_WrongTargetIsMisuse(t *testing.T) {
	db := filepath.Join(t.TempDir(), "dumps.db")
	out, err := execute(t, invokeArgs(db, "profile.get")...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeMisuse)
}

func TestInvoke_BadArguments(t *testing.T) {
	db := filepath.Join(t.TempDir(), "dumps.db")
	cases := map[string][]string{
		"bad seed":       {"invoke", "--db", db, "--seed", "abcd", "--target", "contacts", "contacts.get"},
		"unknown target": {"invoke", "--db", db, "--seed", hex.EncodeToString(testutil.Seed(1)), "--target", "wallet", "contacts.get"},
		"unknown kind":   invokeArgs(db, "contacts.teleport"),
		"bad args":       invokeArgs(db, "contacts.get", "--args", `{"nope":1}`),
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestInvoke_RequiredFlags(t *testing.T) {
	_, err := execute(t, "invoke", "contacts.get")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
