package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Store.OpTimeout)
	assert.Equal(t, "UTC", cfg.Engine.DefaultTimezone)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
store:
  driver: memory
  op_timeout: 2s
engine:
  default_timezone: Europe/Paris
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("MISSIONHUB_SERVER_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 2*time.Second, cfg.Store.OpTimeout)
	assert.Equal(t, "Europe/Paris", cfg.Engine.DefaultTimezone)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.JWT.Secret = " "
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Engine.DefaultTimezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())
}
