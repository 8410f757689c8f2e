package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Testdata(t *testing.T) {
	out, err := execute(t, "validate", scenarioDir)
	require.NoError(t, err)
	assert.Contains(t, out, "3 scenario(s) valid")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a-good", failingScenario)
	writeScenario(t, dir, "b-bad", "name: bad\n")
	writeScenario(t, dir, "c-bad", "name: Bad Name\ndescription: d\n")

	out, err := execute(t, "validate", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ValidationResult
	assert.Equal(t, "error", decodeData(t, out, &result))
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"failing"}, result.Scenarios)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, filepath.Join(dir, "b-bad.yaml"), result.Errors[0].File)
	assert.Equal(t, ErrCodeInvalidInput, result.Errors[0].Code)
}

func TestValidate_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "one", failingScenario)
	writeScenario(t, dir, "two", failingScenario)

	out, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Contains(t, out, "already used")
}

func TestFindScenarios_Filter(t *testing.T) {
	files, err := FindScenarios(scenarioDir, "group-*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(scenarioDir, "group-removal.yaml")}, files)

	_, err = FindScenarios(scenarioDir, "[")
	assert.Error(t, err)
}
