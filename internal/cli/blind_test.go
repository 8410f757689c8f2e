package cli

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swarmsync/internal/identity"
)

func TestBlind_JSON(t *testing.T) {
	seed := strings.Repeat("01", 32)
	out, err := execute(t, "blind", "--seed", seed, "--timestamp", "1700000000", "--format", "json")
	require.NoError(t, err)

	var got BlindResult
	assert.Equal(t, "ok", decodeData(t, out, &got))
	assert.Equal(t, "desktop", got.Platform)
	assert.True(t, strings.HasPrefix(got.Pubkey, identity.PrefixBlindedVersion))

	sig, err := hex.DecodeString(got.Signature)
	require.NoError(t, err)
	assert.True(t, identity.VerifyBlindedVersion(got.Pubkey, identity.PlatformDesktop, 1700000000, sig))
}

func TestBlind_BadInput(t *testing.T) {
	_, err := execute(t, "blind", "--seed", "abcd", "--timestamp", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "blind", "--seed", strings.Repeat("01", 32), "--timestamp", "1", "--platform", "fridge")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
