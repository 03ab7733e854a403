package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel(" warning "))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestNew_JSONWithApp(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Format: "json", App: "pe-passport", Output: &buf})

	l.Info("dropped")
	l.Warn("listing read degraded", "table", "listings")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "listing read degraded", entry["msg"])
	assert.Equal(t, "pe-passport", entry["app"])
	assert.Equal(t, "listings", entry["table"])
}
