package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittyledger/server/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "kittyd",
	Short: "Kitty registry and ledger server",
	Long: `kittyd keeps the kitty registry: creation, breeding and transfer of
kitties with escrowed deposits, backed by memory, SQLite or PostgreSQL.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $KITTYD_CONFIG or config/server.toml)")
}

// configPath reports the config file to load and whether the operator named
// it explicitly.
func configPath() (string, bool) {
	if cfgFile != "" {
		return cfgFile, true
	}
	if p := os.Getenv("KITTYD_CONFIG"); p != "" {
		return p, true
	}
	return "config/server.toml", false
}

// setup loads the config and builds the root logger every command uses.
func setup() (*config.Config, *zap.Logger, error) {
	path, explicit := configPath()
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
