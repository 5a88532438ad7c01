package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  cache_ttl_seconds: 15
database:
  driver: sqlite
  dsn: "file::memory:"
rfid:
  api_key: from-file
mqtt:
  qos: 7
`)
	t.Setenv("RFID_API_KEY", "from-env")
	t.Setenv("MQTT_PASSWORD", "pw")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.CacheTTL)
	assert.Equal(t, "X-User-ID", cfg.Server.OperatorIDHeader)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "from-env", cfg.RFID.APIKey, "environment overrides the file")
	assert.Equal(t, "system:rfid-pipeline", cfg.RFID.SystemActorID)
	assert.Equal(t, "pw", cfg.MQTT.Password)
	assert.Equal(t, 1, cfg.MQTT.QoS)
	assert.Equal(t, "rfid/readers/+/reads", cfg.MQTT.Topic)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 64, cfg.WorkerPool.QueueSize)
	assert.Equal(t, 3600, cfg.Push.TTL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
