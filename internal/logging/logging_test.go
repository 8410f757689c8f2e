package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{JSON: true, Writer: &buf})

	l.Info("pushed", zap.Int64("seqno", 3))
	require.NoError(t, l.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pushed", entry["msg"])
	assert.Equal(t, float64(3), entry["seqno"])
}

func TestNew_VerboseGatesDebug(t *testing.T) {
	var quiet, loud bytes.Buffer
	New(Options{Writer: &quiet}).Debug("hidden")
	New(Options{Writer: &loud, Verbose: true}).Debug("shown")

	assert.Empty(t, quiet.String())
	assert.Contains(t, loud.String(), "shown")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
