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
	path := filepath.Join(t.TempDir(), "server.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
[database]
driver = "sqlite"
sqlite_path = "/tmp/k.db"

[network]
tick_rate = "50ms"

[registry]
id_bits = 16
reserve_amount = 10
release_policy = "recorded"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 50*time.Millisecond, cfg.Network.TickRate)
	assert.Equal(t, 16, cfg.Registry.IDBits)
	assert.Equal(t, uint64(10), cfg.Registry.ReserveAmount)
	assert.Equal(t, "recorded", cfg.Registry.ReleasePolicy)
	assert.Equal(t, "password", cfg.Auth.Mode)
	assert.NotZero(t, cfg.Server.StartTime)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"driver", "[database]\ndriver = \"mysql\"\n"},
		{"id bits", "[registry]\nid_bits = 12\n"},
		{"policy", "[registry]\nrelease_policy = \"sometimes\"\n"},
		{"token secret", "[auth]\nmode = \"token\"\n"},
		{"auth mode", "[auth]\nmode = \"oauth\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}
