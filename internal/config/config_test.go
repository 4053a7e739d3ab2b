package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, 30*24*time.Hour, c.DefaultWindow)
	assert.Equal(t, 2*time.Minute, c.OrphanGrace)
	assert.Equal(t, "info", c.LogLevel)
	assert.Empty(t, c.FirewallDeleteCmd)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WARDEN_PORT", "9090")
	t.Setenv("WARDEN_STORE_PATH", "/tmp/warden/bindings.json")
	t.Setenv("WARDEN_DEFAULT_WINDOW", "24h")
	t.Setenv("WARDEN_ORPHAN_GRACE", "5m")
	t.Setenv("WARDEN_FW_DELETE_CMD", "pfctl -t %ZONE% -T delete %MAC%")

	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "9090", c.Port)
	assert.Equal(t, "/tmp/warden/bindings.json", c.StorePath)
	assert.Equal(t, 24*time.Hour, c.DefaultWindow)
	assert.Equal(t, 5*time.Minute, c.OrphanGrace)
	assert.Equal(t, "pfctl -t %ZONE% -T delete %MAC%", c.FirewallDeleteCmd)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "warden.env")
	require.NoError(t, os.WriteFile(envFile, []byte("WARDEN_PORT=7070\n"), 0644))

	c, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "7070", c.Port)

	os.Unsetenv("WARDEN_PORT")
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("WARDEN_DEFAULT_WINDOW", "not-a-duration")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "warden/data"), expandPath("~/warden/data"))
	assert.Equal(t, "/etc/warden", expandPath("/etc/warden"))
}

func TestEnsureDirs(t *testing.T) {
	dir := t.TempDir()
	c := &Config{
		StorePath:    filepath.Join(dir, "data", "bindings.json"),
		RegistryPath: filepath.Join(dir, "data", "passthrough.json"),
		AuditPath:    filepath.Join(dir, "audit", "audit.jsonl"),
		SessionDBDir: filepath.Join(dir, "portal"),
	}
	require.NoError(t, c.EnsureDirs())

	info, err := os.Stat(filepath.Join(dir, "data"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	info, err = os.Stat(filepath.Join(dir, "portal"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
