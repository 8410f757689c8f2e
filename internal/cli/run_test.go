package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swarmsync/internal/store"
)

var (
	scenarioDir = filepath.Join("..", "harness", "testdata", "scenarios")
	goldenDir   = filepath.Join("..", "harness", "testdata", "golden")
)

const failingScenario = `
name: failing
description: expects an error that never happens
devices: [{name: phone, user: 1}]
steps:
  - {device: phone, target: profile, do: profile.set, args: {name: Alice}, expect: invalid_input}
`

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRun_AllScenarios(t *testing.T) {
	out, err := execute(t, "run", scenarioDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ contacts-approved")
	assert.Contains(t, out, "✓ group-removal")
	assert.Contains(t, out, "3 passed, 0 failed, 3 total")
}

func TestRun_GoldenMatch(t *testing.T) {
	out, err := execute(t, "run", scenarioDir, "--filter", "contacts-*", "--golden", goldenDir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestRun_GoldenUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "run", scenarioDir, "--golden", dir, "--update")
	require.NoError(t, err)
	for _, name := range []string{"contacts-approved", "group-removal", "profile-priority"} {
		assert.FileExists(t, filepath.Join(dir, name+".golden"))
	}

	_, err = execute(t, "run", scenarioDir, "--golden", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "group-removal.golden"), []byte(`{"trace":[]}`), 0o644))
	out, err := execute(t, "run", scenarioDir, "--golden", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ group-removal")
	assert.Contains(t, out, "does not match golden file")
}

func TestRun_UpdateRequiresGolden(t *testing.T) {
	_, err := execute(t, "run", scenarioDir, "--update")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_FailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "failing", failingScenario)

	out, err := execute(t, "run", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var summary RunSummary
	assert.Equal(t, "error", decodeData(t, out, &summary))
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Scenarios, 1)
	assert.Equal(t, "failing", summary.Scenarios[0].Name)
	assert.NotEmpty(t, summary.Scenarios[0].Errors)
}

func TestRun_MissingPath(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario path not found")
}

func TestRun_EmptyDir(t *testing.T) {
	out, err := execute(t, "run", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestRun_InvalidScenarioIsCommandError(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken", "name: broken\n")
	_, err := execute(t, "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_PersistsDumps(t *testing.T) {
	db := filepath.Join(t.TempDir(), "dumps.db")
	_, err := execute(t, "run", filepath.Join(scenarioDir, "contacts-approved.yaml"), "--db", db)
	require.NoError(t, err)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	infos, err := st.ListDumps(context.Background(), "contacts")
	require.NoError(t, err)
	assert.NotEmpty(t, infos)
}
