package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "slskcored.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverridesDefaultsFieldByField(t *testing.T) {
	path := writeTempConfig(t, `
[server]
username = "alice"
password = "hunter2"

[listen]
port = 2345
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "alice", cfg.Server.Username)
	require.Equal(t, "hunter2", cfg.Server.Password)
	require.Equal(t, "server.slsknet.org:2242", cfg.Server.Address, "unset fields keep their default")
	require.Equal(t, uint32(2345), cfg.Listen.Port)
	require.Equal(t, int64(10000), cfg.Listen.MaxConnections, "unset fields keep their default")
}

func TestLoadRequiresUsername(t *testing.T) {
	path := writeTempConfig(t, `
[server]
address = "example.org:2242"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestDefaultIsUsableOnItsOwn(t *testing.T) {
	cfg := Default()
	require.NotZero(t, cfg.Listen.Port)
	require.NotZero(t, cfg.Listen.MaxConnections)
	require.NotEmpty(t, cfg.Storage.DataDir)
}
