package main

import (
	"context"
	stdnet "net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kittyledger/server/internal/config"
	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
	"github.com/kittyledger/server/internal/ledger"
	gonet "github.com/kittyledger/server/internal/net"
	"github.com/kittyledger/server/internal/net/packet"
)

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		log, err := newLogger(config.LoggingConfig{Level: "debug", Format: format})
		require.NoError(t, err, format)
		assert.True(t, log.Core().Enabled(zap.DebugLevel))
	}
	log, err := newLogger(config.LoggingConfig{Level: "nonsense"})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zap.DebugLevel))
}

func TestSetupReadsExplicitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nname = \"cattery\"\n"), 0o644))
	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })

	cfg, _, err := setup()
	require.NoError(t, err)
	assert.Equal(t, "cattery", cfg.Server.Name)

	cfgFile = filepath.Join(t.TempDir(), "missing.toml")
	_, _, err = setup()
	require.Error(t, err, "an explicit path must exist")
}

func TestApplyGenesis(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	led := ledger.New()

	require.NoError(t, applyGenesis(ctx, filepath.Join(t.TempDir(), "none.yaml"), store, led, zap.NewNop()))

	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts:\n  - account: alice\n    free: 500\n"), 0o644))
	require.NoError(t, applyGenesis(ctx, path, store, led, zap.NewNop()))
	require.NoError(t, applyGenesis(ctx, path, store, led, zap.NewNop()))

	require.NoError(t, store.View(ctx, func(r kv.Reader) error {
		d, err := led.Account(r, kitty.MustAccount("alice"))
		require.NoError(t, err)
		assert.Equal(t, kitty.Balance(500), d.Free)
		return nil
	}))
}

func TestNewAuthProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Mode = "bogus"
	_, _, err := newAuthProvider(cfg, kv.NewMemoryStore(), zap.NewNop())
	require.Error(t, err)
}

func TestCloseSessionsDeliversPendingResults(t *testing.T) {
	server, client := stdnet.Pipe()
	defer client.Close()
	sess := gonet.NewSession(server, 1, 4, 4, 0, zap.NewNop())
	go sess.Start("kittyd")
	sessions := gonet.NewSessionStore()
	sessions.Add(sess)

	client.SetDeadline(time.Now().Add(5 * time.Second))
	_, err := gonet.ReadFrame(client)
	require.NoError(t, err)

	result := []byte{packet.S_OPCODE_RESULT, packet.C_OPCODE_CREATE, kitty.CodeOK}
	sess.Send(result)
	frames := make(chan []byte, 1)
	go func() {
		f, _ := gonet.ReadFrame(client)
		frames <- f
	}()

	closeSessions(sessions, 5*time.Second)
	assert.True(t, sess.IsClosed())
	assert.Equal(t, result, <-frames)
}
