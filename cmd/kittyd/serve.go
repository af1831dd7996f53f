package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kittyledger/server/internal/api"
	"github.com/kittyledger/server/internal/auth"
	"github.com/kittyledger/server/internal/config"
	"github.com/kittyledger/server/internal/core/event"
	coresys "github.com/kittyledger/server/internal/core/system"
	"github.com/kittyledger/server/internal/handler"
	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
	"github.com/kittyledger/server/internal/ledger"
	"github.com/kittyledger/server/internal/metrics"
	gonet "github.com/kittyledger/server/internal/net"
	"github.com/kittyledger/server/internal/net/packet"
	"github.com/kittyledger/server/internal/persist"
	"github.com/kittyledger/server/internal/publish"
	"github.com/kittyledger/server/internal/random"
	"github.com/kittyledger/server/internal/registry"
	"github.com/kittyledger/server/internal/scripting"
	"github.com/kittyledger/server/internal/system"
	"github.com/kittyledger/server/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the registry server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printBanner(cfg.Server.Name)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("trace flush failed", zap.Error(err))
		}
	}()

	printSection("storage")
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()
	printOK(fmt.Sprintf("%s store ready", cfg.Database.Driver))

	led := ledger.New()
	if err := applyGenesis(ctx, cfg.Genesis.Path, store, led, log); err != nil {
		return err
	}
	fmt.Println()

	m := metrics.New()
	bus := event.NewBus()
	epoch, err := random.NewEpoch()
	if err != nil {
		return fmt.Errorf("entropy: %w", err)
	}

	reg, err := registry.New(registry.Options{
		IDBits:        cfg.Registry.IDBits,
		ReserveAmount: kitty.Balance(cfg.Registry.ReserveAmount),
		ReleasePolicy: registry.ReleasePolicy(cfg.Registry.ReleasePolicy),
	}, registry.Deps{
		Store:    store,
		Ledger:   led,
		Source:   random.Blake2{},
		Entropy:  epoch,
		Bus:      bus,
		Observer: m,
		Log:      log,
	})
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	printSection("services")
	traits, err := scripting.NewEngine(cfg.Scripting.Dir, log)
	if err != nil {
		// Traits are cosmetic; the built-in mapping covers a missing script.
		log.Warn("lua engine unavailable, using built-in traits", zap.Error(err))
		traits = nil
	} else {
		defer traits.Close()
		printOK("lua scripts loaded")
	}

	provider, loginMode, err := newAuthProvider(cfg, store, log)
	if err != nil {
		return err
	}
	printOK(fmt.Sprintf("auth mode %s", cfg.Auth.Mode))

	sinks, err := openSinks(ctx, cfg.Events)
	if err != nil {
		return err
	}
	publisher := publish.NewPublisher(sinks, cfg.Events.Buffer, m, log)
	publisher.Subscribe(bus)
	for _, s := range sinks {
		printOK(fmt.Sprintf("publishing events to %s", s.Name()))
	}

	sessions := gonet.NewSessionStore()
	pktReg := packet.NewRegistry(log)
	deps := &handler.Deps{
		Config:    cfg,
		Log:       log,
		Registry:  reg,
		Auth:      provider,
		LoginMode: loginMode,
		Sessions:  sessions,
		Bus:       bus,
	}
	handler.RegisterAll(pktReg, deps)
	handler.Subscribe(bus, deps)

	packetsPerSecond := 0
	if cfg.RateLimit.Enabled {
		packetsPerSecond = cfg.RateLimit.PacketsPerSecond
	}
	netServer, err := gonet.NewServer(cfg.Network.BindAddress, gonet.ServerOptions{
		Name:             cfg.Server.Name,
		InQueueSize:      cfg.Network.InQueueSize,
		OutQueueSize:     cfg.Network.OutQueueSize,
		PacketsPerSecond: packetsPerSecond,
		ReadTimeout:      cfg.Network.ReadTimeout,
		WriteTimeout:     cfg.Network.WriteTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}

	runner := coresys.NewRunner()
	runner.Observe(m)
	runner.Register(system.NewInputSystem(netServer, pktReg, sessions, cfg.Network.MaxPacketsPerTick, bus, m.Sessions, log))
	runner.Register(system.NewEntropySystem(epoch, log))
	runner.Register(system.NewDispatchSystem(bus))
	runner.Register(system.NewOutputSystem(sessions))

	var httpServer *http.Server
	if cfg.HTTP.BindAddress != "" {
		httpServer = &http.Server{
			Addr:              cfg.HTTP.BindAddress,
			Handler:           api.New(reg, traits, m.Handler(), log).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	fmt.Println()

	printSection("ready")
	printReady(fmt.Sprintf("listening on %s", netServer.Addr()))
	if httpServer != nil {
		printReady(fmt.Sprintf("query api on %s", httpServer.Addr))
	}
	printReady(fmt.Sprintf("ledger loop started (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		netServer.AcceptLoop()
		return nil
	})
	g.Go(func() error {
		defer netServer.Shutdown()
		return runLoop(gctx, cfg.Network.TickRate, runner, sessions, m, log)
	})
	g.Go(func() error {
		return publisher.Run(gctx)
	})
	if httpServer != nil {
		g.Go(func() error {
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(sctx)
		})
	}

	err = g.Wait()
	log.Info("server stopped")
	return err
}

// runLoop drives the phase runner until ctx ends. Every registry operation
// executes on this goroutine.
func runLoop(ctx context.Context, tick time.Duration, runner *coresys.Runner, sessions *gonet.SessionStore, m *metrics.Metrics, log *zap.Logger) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			runner.Tick(tick)
			m.ObserveTick(start)
		case <-ctx.Done():
			log.Info("shutdown signal received")
			// One last tick delivers pending events and flushes results.
			runner.Tick(tick)
			closeSessions(sessions, drainTimeout)
			return nil
		}
	}
}

const drainTimeout = 2 * time.Second

// closeSessions lets every writer send what is queued, then closes whatever
// is still open when the timeout expires.
func closeSessions(sessions *gonet.SessionStore, timeout time.Duration) {
	var open []*gonet.Session
	sessions.ForEach(func(s *gonet.Session) {
		s.CloseAfterFlush()
		open = append(open, s)
	})
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for _, s := range open {
		select {
		case <-s.Done():
		case <-deadline.C:
			for _, s := range open {
				s.Close()
			}
			return
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (kv.Store, error) {
	octx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	store, err := persist.OpenStore(octx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return store, nil
}

// applyGenesis credits the genesis endowments once. A missing file is not an
// error; the ledger then starts empty.
func applyGenesis(ctx context.Context, path string, store kv.Store, led *ledger.Ledger, log *zap.Logger) error {
	if path == "" {
		return nil
	}
	g, err := ledger.LoadGenesis(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("genesis file not found, skipping", zap.String("path", path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	applied, err := led.ApplyGenesis(ctx, store, g, log)
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	if applied {
		printOK(fmt.Sprintf("genesis applied (%d accounts)", len(g.Endowments)))
	}
	return nil
}

func newAuthProvider(cfg *config.Config, store kv.Store, log *zap.Logger) (auth.Provider, byte, error) {
	switch cfg.Auth.Mode {
	case "token":
		return auth.NewTokenProvider(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL), packet.LoginToken, nil
	case "password":
		return auth.NewPasswordProvider(store, cfg.Auth.AutoCreateAccounts, log), packet.LoginPassword, nil
	default:
		return nil, 0, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

func openSinks(ctx context.Context, cfg config.EventsConfig) ([]publish.Sink, error) {
	var sinks []publish.Sink
	if cfg.RedisURL != "" {
		s, err := publish.NewRedisSink(ctx, cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			return nil, fmt.Errorf("redis sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	if len(cfg.KafkaBrokers) > 0 {
		s, err := publish.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			for _, open := range sinks {
				open.Close()
			}
			return nil, fmt.Errorf("kafka sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
