package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimits_Defaults(t *testing.T) {
	out, err := execute(t, "limits")
	require.NoError(t, err)
	assert.Contains(t, out, "max_name_length")
	assert.Contains(t, out, "registry_size")
}

func TestLimits_ConfigOverlayJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.toml")
	require.NoError(t, os.WriteFile(path, []byte("registry_size = 7\n"), 0o600))

	out, err := execute(t, "limits", "--config", path, "--format", "json")
	require.NoError(t, err)
	var got map[string]int
	assert.Equal(t, "ok", decodeData(t, out, &got))
	assert.Equal(t, 7, got["registry_size"])
	assert.Equal(t, 100, got["max_name_length"])
}

func TestLimits_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.toml")
	require.NoError(t, os.WriteFile(path, []byte("registry_sise = 7\n"), 0o600))

	_, err := execute(t, "limits", "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
