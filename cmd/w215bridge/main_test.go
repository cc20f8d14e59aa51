package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a minimal config pointing at a per-test database and
// sets GRAYLOGIC_CONFIG to it.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
site:
  id: test-site
database:
  path: "` + filepath.Join(tmpDir, "bridge.db") + `"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "w215-test"
  qos: 1
influxdb:
  enabled: false
logging:
  level: error
  format: text
  output: stdout
` + extra
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))
	t.Setenv("GRAYLOGIC_CONFIG", configPath)
	return tmpDir
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestRun_InvalidSeedAddress(t *testing.T) {
	writeConfig(t, `
w215:
  devices:
    - id: plug-1
      address: "not-an-ip"
      pin: "123456"
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "seeding"), err.Error())
}

func TestRun_BrokerUnavailable(t *testing.T) {
	dir := writeConfig(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MQTT")

	// The database was migrated before the broker was reached.
	_, statErr := os.Stat(filepath.Join(dir, "bridge.db"))
	assert.NoError(t, statErr)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")
	assert.Equal(t, defaultConfigPath, getConfigPath())

	t.Setenv("GRAYLOGIC_CONFIG", "/custom/path/config.yaml")
	assert.Equal(t, "/custom/path/config.yaml", getConfigPath())
}
