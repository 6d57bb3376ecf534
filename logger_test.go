package auth_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-chassis-auth"
)

func TestSlogLoggerJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := auth.NewSlogLogger("info", "json", buf).GetLogger("sessions")

	logger.Debug("hidden %d", 1)
	logger.Info("purged %d sessions", 3)
	logger.Warn("plain message", "user", "alice")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	first := map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "INFO", first["level"])
	assert.Equal(t, "purged 3 sessions", first["msg"])
	assert.Equal(t, "sessions", first["component"])

	second := map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "WARN", second["level"])
	assert.Equal(t, "alice", second["user"])
}

func TestSlogLoggerText(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := auth.NewSlogLogger("debug", "text", buf)

	logger.Debug("visible")
	logger.Error("failed: %v", "boom")

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, `msg="failed: boom"`)
}
