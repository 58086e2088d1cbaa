package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
  staff_allowed_ips: ["10.0.0.1", "127.0.0.1"]
database:
  driver: postgres
  dsn: "host=localhost user=dorm dbname=dorm"
allocation:
  auto_enabled: true
  auto_interval_seconds: 60
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"10.0.0.1", "127.0.0.1"}, cfg.Server.StaffAllowedIPs)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.True(t, cfg.Allocation.AutoEnabled)
	assert.Equal(t, time.Minute, cfg.Allocation.AutoInterval)

	// Defaults for everything left out.
	assert.Equal(t, 10.0, cfg.Server.RateLimitPerSec)
	assert.Equal(t, 5, cfg.Server.RateLimitBurst)
	assert.Equal(t, 30*time.Second, cfg.Server.CacheTTL)
	assert.Equal(t, 5*time.Second, cfg.Allocation.LockTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "dormitory.db", cfg.Database.DSN)
	assert.False(t, cfg.Allocation.AutoEnabled)
	assert.Equal(t, 5*time.Minute, cfg.Allocation.AutoInterval)
}

func TestApplyDefaults_UnknownDriver(t *testing.T) {
	cfg := Config{Database: DatabaseConfig{Driver: "oracle"}}
	cfg.ApplyDefaults()
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
}
