package community

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pk = strings.Repeat("ab", 32)

func TestParseFullURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		base string
		room string
	}{
		{"plain", "https://example.org/Lobby?public_key=" + pk, "https://example.org", "Lobby"},
		{"r prefix", "https://example.org/r/Lobby?public_key=" + pk, "https://example.org", "Lobby"},
		{"default port", "HTTPS://Example.ORG:443/lobby?public_key=" + pk, "https://example.org", "lobby"},
		{"custom port", "http://10.0.0.1:8080/lobby/?public_key=" + pk, "http://10.0.0.1:8080", "lobby"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseFullURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.base, d.BaseURL)
			assert.Equal(t, tt.room, d.Room)
			assert.Len(t, d.Pubkey, PubkeySize)
		})
	}
}

func TestParseFullURL_WithoutPubkey(t *testing.T) {
	d, err := ParseFullURL("https://example.org/lobby")
	require.NoError(t, err)
	assert.Nil(t, d.Pubkey)
}

func TestParseFullURL_Invalid(t *testing.T) {
	for _, in := range []string{
		"ftp://example.org/lobby",
		"https:///lobby",
		"https://example.org/",
		"https://example.org/bad room",
		"https://example.org/lobby?public_key=zz",
		"https://example.org/lobby?public_key=abcd",
	} {
		_, err := ParseFullURL(in)
		assert.True(t, errors.Is(err, ErrInvalidURL), in)
	}
}

func TestBuildFullURL_RoundTrip(t *testing.T) {
	d, err := ParseFullURL("https://example.org/r/Lobby?public_key=" + pk)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/Lobby?public_key="+pk, d.FullURL())
	assert.Equal(t, "lobby", RoomKey(d.Room))
}
