package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittyledger/server/internal/auth"
	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/ledger"
	"github.com/kittyledger/server/internal/random"
	"github.com/kittyledger/server/internal/registry"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply storage migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()
		// Opening a SQL store runs its migrations.
		store, err := openStore(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		printOK(fmt.Sprintf("%s schema up to date", cfg.Database.Driver))
		return store.Close()
	},
}

var genesisFile string

var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Credit the genesis endowments once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()
		path := cfg.Genesis.Path
		if genesisFile != "" {
			path = genesisFile
		}
		g, err := ledger.LoadGenesis(path)
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()
		applied, err := ledger.New().ApplyGenesis(cmd.Context(), store, g, log)
		if err != nil {
			return err
		}
		if applied {
			printOK(fmt.Sprintf("genesis applied (%d accounts)", len(g.Endowments)))
		} else {
			printOK("genesis was already applied")
		}
		return nil
	},
}

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <account>",
	Short: "Mint a login token for token auth mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is not set")
		}
		account, err := kitty.ParseAccount(args[0])
		if err != nil {
			return err
		}
		ttl := cfg.Auth.TokenTTL
		if tokenTTL > 0 {
			ttl = tokenTTL
		}
		tok, err := auth.NewTokenProvider(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, ttl).Issue(account)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var registerPassword string

var registerCmd = &cobra.Command{
	Use:   "register <account>",
	Short: "Create a password account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()
		if registerPassword == "" {
			return errors.New("--password is required")
		}
		account, err := kitty.ParseAccount(args[0])
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()
		p := auth.NewPasswordProvider(store, false, log)
		if err := p.Register(cmd.Context(), account, registerPassword); err != nil {
			return fmt.Errorf("register %s: %w", account, err)
		}
		printOK(fmt.Sprintf("account %s registered", account))
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check that the ownership and lineage indices agree",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()
		store, err := openStore(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()

		// Verify only reads, so fixed entropy is enough.
		reg, err := registry.New(registry.Options{
			IDBits:        cfg.Registry.IDBits,
			ReserveAmount: kitty.Balance(cfg.Registry.ReserveAmount),
			ReleasePolicy: registry.ReleasePolicy(cfg.Registry.ReleasePolicy),
		}, registry.Deps{
			Store:   store,
			Ledger:  ledger.New(),
			Source:  random.Blake2{},
			Entropy: random.Fixed("audit"),
			Log:     log,
		})
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()
		if err := reg.Verify(ctx); err != nil {
			log.Error("audit failed", zap.Error(err))
			return err
		}
		count, err := reg.Count(ctx)
		if err != nil {
			return err
		}
		printOK(fmt.Sprintf("indices consistent (%d kitties)", uint64(count)))
		return nil
	},
}

func init() {
	genesisCmd.Flags().StringVar(&genesisFile, "file", "", "genesis file (default: genesis.path from config)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default: auth.token_ttl)")
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "account password")
	rootCmd.AddCommand(migrateCmd, genesisCmd, tokenCmd, registerCmd, auditCmd)
}
