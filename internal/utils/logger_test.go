package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fprint-service/internal/config"
)

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fprint.log")

	logger, err := NewLogger(&config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     path,
		MaxSize:    1,
		MaxBackups: 1,
	})
	require.NoError(t, err)

	NewAuditLogger(logger).LogPrintSaved("0001/0000/7", "session-1")
	logger.Debug("dropped below level")
	require.NoError(t, CloseLogger(logger))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, "Print saved", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "audit", entry["component"])
	assert.Equal(t, "save_print", entry["action"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(&config.LoggingConfig{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "CONFLICT", ErrorCode(409))
	assert.Equal(t, "UNSUPPORTED_OPERATION", ErrorCode(422))
	assert.Equal(t, "UNKNOWN_ERROR", ErrorCode(418))
}
