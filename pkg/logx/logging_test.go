package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want Level
	}{
		{raw: "debug", want: LevelDebug},
		{raw: " INFO ", want: LevelInfo},
		{raw: "warning", want: LevelWarn},
		{raw: "error", want: LevelError},
		{raw: "nonsense", want: LevelWarn},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.raw, LevelWarn), tt.raw)
	}
}

func TestWriterLoggerFieldsAndGating(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "test"))

	log.Debug("hidden")
	require.Zero(t, buf.Len(), "debug must be gated at info level")

	log.Info("visible", Int("index", 2), Err(errors.New("boom")))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "visible", m["message"])
	assert.Equal(t, "test", m["comp"])
	assert.EqualValues(t, 2, m["index"])
	assert.Equal(t, "boom", m["err"])
	assert.NotEmpty(t, m["caller"])
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	assert.True(t, l.IsZero())
	l.Info("nothing happens")
	assert.False(t, Nop().IsZero())
}

func TestEnabledFollowsLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "info")
	assert.False(t, log.Enabled(LevelDebug))
	assert.True(t, log.Enabled(LevelInfo))
	assert.True(t, log.With(String("k", "v")).Enabled(LevelError))
	assert.False(t, Nop().Enabled(LevelError))
}
