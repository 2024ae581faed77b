package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/toxclient/engine"
	"github.com/opd-ai/toxclient/limits"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	cfg, err := Load(path)
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Network, cfg.Network)
	assert.Equal(t, def.Bootstrap, cfg.Bootstrap)
	assert.Equal(t, int64(limits.MaxAvatarSize), cfg.FileTransfers.MaxAvatarSize)
	assert.Zero(t, cfg.FileTransfers.StallTimeout, "transfers have no timeout unless configured")
	assert.Equal(t, path, cfg.Path())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "Load must not create the file")
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	user := `{
		"lastUsedProfile": "alice",
		"network": {"udp": false, "proxy": {"enabled": true, "type": "http", "port": 3128}},
		"fileTransfers": {"rejectAvatars": true}
	}`
	require.NoError(t, os.WriteFile(path, []byte(user), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.LastUsedProfile)
	assert.False(t, cfg.Network.UDP)
	assert.True(t, cfg.Network.IPv6, "unspecified nested fields keep their defaults")
	assert.True(t, cfg.Network.Proxy.Enabled)
	assert.Equal(t, "http", cfg.Network.Proxy.Type)
	assert.Equal(t, "127.0.0.1", cfg.Network.Proxy.Address)
	assert.Equal(t, 3128, cfg.Network.Proxy.Port)
	assert.True(t, cfg.FileTransfers.RejectAvatars)
	assert.False(t, cfg.FileTransfers.RejectFiles)
	assert.Equal(t, int64(limits.MaxAvatarSize), cfg.FileTransfers.MaxAvatarSize)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"lastUsedProfile": "file"}`), 0o600))

	t.Setenv("TOXCLIENT_LAST_USED_PROFILE", "env")
	t.Setenv("TOXCLIENT_USE_SIMULATION", "true")
	t.Setenv("TOXCLIENT_FILE_TRANSFERS_REJECT_FILES", "true")
	t.Setenv("TOXCLIENT_NETWORK_PROXY_PORT", "1080")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env", cfg.LastUsedProfile)
	assert.True(t, cfg.UseSimulation)
	assert.True(t, cfg.FileTransfers.RejectFiles)
	assert.Equal(t, 1080, cfg.Network.Proxy.Port)
}

func TestLoadDefaultPathFollowsDataDirEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{"lastUsedProfile": "moved"}`), 0o600))
	t.Setenv("TOXCLIENT_DATA_DIR", dir)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, FileName), cfg.Path())
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "moved", cfg.LastUsedProfile)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"network": `},
		{"bad proxy type", `{"network": {"proxy": {"type": "socks4"}}}`},
		{"short bootstrap key", `{"bootstrap": {"publicKey": "abcd"}}`},
		{"bad bootstrap port", `{"bootstrap": {"port": 70000}}`},
		{"negative avatar ceiling", `{"fileTransfers": {"maxAvatarSize": -1}}`},
		{"enabled proxy without address", `{"network": {"proxy": {"enabled": true, "address": ""}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))

			_, err := Load(path)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.LastUsedProfile = "bob"
	cfg.FileTransfers.RejectFiles = true
	require.NoError(t, cfg.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "bob", decoded["lastUsedProfile"])

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bob", again.LastUsedProfile)
	assert.True(t, again.FileTransfers.RejectFiles)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestSaveWithoutPath(t *testing.T) {
	cfg := Default()
	cfg.SetPath("")
	assert.Error(t, cfg.Save())
}

func TestEngineOptions(t *testing.T) {
	cfg := Default()
	opts := cfg.EngineOptions()
	assert.True(t, opts.UDPEnabled)
	assert.True(t, opts.LocalDiscovery)
	assert.Equal(t, engine.ProxyTypeNone, opts.Proxy.Type)

	cfg.Network.UDP = false
	opts = cfg.EngineOptions()
	assert.False(t, opts.UDPEnabled)
	assert.False(t, opts.LocalDiscovery, "local discovery needs UDP")

	cfg.Network.Proxy.Enabled = true
	cfg.Network.Proxy.Type = "http"
	cfg.Network.Proxy.Address = "proxy.local"
	cfg.Network.Proxy.Port = 8080
	opts = cfg.EngineOptions()
	assert.Equal(t, engine.ProxyTypeHTTP, opts.Proxy.Type)
	assert.Equal(t, "proxy.local", opts.Proxy.Host)
	assert.Equal(t, uint16(8080), opts.Proxy.Port)

	cfg.Network.Proxy.Type = "socks5"
	assert.Equal(t, engine.ProxyTypeSOCKS5, cfg.EngineOptions().Proxy.Type)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("TOXCLIENT_TEST_DOTENV=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TOXCLIENT_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(envFile, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("TOXCLIENT_TEST_DOTENV"))
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
