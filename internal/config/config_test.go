package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8086", cfg.Server.Port)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 5, cfg.Enroll.MaxRetries)
	assert.Equal(t, 120*time.Second, cfg.Enroll.Timeout)
	assert.Equal(t, 3, cfg.Drivers.Virtual.Stages)
	assert.Equal(t, 57600, cfg.Drivers.R30x.BaudRate)
	assert.Zero(t, cfg.Discovery.Serial.BaudRate)
	assert.Zero(t, cfg.Discovery.USB.IOTimeout)
	assert.Equal(t, []string{"10c4:ea60", "1a86:7523"}, cfg.Discovery.Serial.Bridges)
	assert.Equal(t, "0.0.0.0:8086", cfg.GetServerAddr())
	assert.True(t, cfg.IsDebugEnabled())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fprint.yaml")
	yaml := `
server:
  port: "9000"
storage:
  backend: postgres
discovery:
  usb:
    io_timeout: 3s
  virtual:
    enabled: true
    dirs: ["/srv/frames"]
drivers:
  bulkimg:
    usb_ids:
      - vendor: 0x1234
        product: 0x0001
        devtype: 2
  virtual:
    matching:
      grid: 12
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("FPRINT_ENROLL_MAX_RETRIES", "9")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, []string{"/srv/frames"}, cfg.Discovery.Virtual.Dirs)
	assert.Equal(t, 3*time.Second, cfg.Discovery.USB.IOTimeout)
	assert.Equal(t, 9, cfg.Enroll.MaxRetries)
	assert.Equal(t, 12, cfg.Drivers.Virtual.Matching.Grid)
	require.Len(t, cfg.Drivers.BulkImg.USBIDs, 1)
	assert.Equal(t, uint16(0x1234), cfg.Drivers.BulkImg.USBIDs[0].Vendor)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Contains(t, cfg.GetDatabaseDSN(), "dbname=fprint")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"unknown backend", "FPRINT_STORAGE_BACKEND", "s3"},
		{"unknown level", "FPRINT_LOGGING_LEVEL", "verbose"},
		{"unknown environment", "FPRINT_APP_ENVIRONMENT", "qa"},
		{"negative retries", "FPRINT_ENROLL_MAX_RETRIES", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.env, tt.val)

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
