package app

import (
	"context"
	"time"

	"github.com/stegochat/stegochat/internal/bus"
	"github.com/stegochat/stegochat/internal/config"
	"github.com/stegochat/stegochat/internal/keyring"
	"github.com/stegochat/stegochat/internal/logging"
	"github.com/stegochat/stegochat/internal/presence"
	"github.com/stegochat/stegochat/internal/session"
	"github.com/stegochat/stegochat/internal/status"
	"github.com/stegochat/stegochat/internal/stego"
	intsync "github.com/stegochat/stegochat/internal/sync"
	"github.com/stegochat/stegochat/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved startup flags passed to the fx module.
type Params struct {
	ServerURL   string // optional override for config server_url
	DisplayName string // optional override for config display_name
	QuietLogs   bool   // log to file only (the TUI owns the terminal)
	AutoJoin    bool   // join on start instead of waiting for the UI
}

// Module returns the fx module for the client, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("client",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideSessionStore,
			provideTransport,
			provideKeyring,
			provideCursor,
			provideSyncEngine,
			providePulse,
			provideBatch,
			provideOrchestrator,
			NewCore,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) *config.Config {
	cfg := config.LoadOrDefault(session.ConfigPath())
	if p.ServerURL != "" {
		cfg.ServerURL = p.ServerURL
	}
	if p.DisplayName != "" {
		cfg.DisplayName = p.DisplayName
	}
	return cfg
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if err := session.EnsureDir(); err != nil {
		return nil, err
	}
	if p.QuietLogs {
		return logging.NewFileOnly(session.LogPath(), cfg.ServerURL)
	}
	return logging.New(session.LogPath(), cfg.ServerURL)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideSessionStore() *session.Store {
	return session.NewStore()
}

func provideTransport(cfg *config.Config, logger *zap.Logger) *transport.Client {
	return transport.New(cfg.ServerURL, logger)
}

func provideKeyring(tc *transport.Client, b *bus.Bus, logger *zap.Logger) *keyring.Keyring {
	return keyring.New(tc, b, logger)
}

func provideCursor() *intsync.Cursor {
	return intsync.NewCursor()
}

func provideSyncEngine(tc *transport.Client, cursor *intsync.Cursor, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *intsync.Engine {
	interval := time.Duration(cfg.PollIntervalMS) * time.Millisecond
	return intsync.NewEngine(tc, cursor, b, logger, interval)
}

func providePulse(tc *transport.Client, sessions *session.Store, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *presence.Pulse {
	interval := time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond
	return presence.NewPulse(tc, sessions, b, logger, interval)
}

func provideBatch() *stego.Batch {
	return stego.NewBatch()
}

func provideOrchestrator(tc *transport.Client, sessions *session.Store, keys *keyring.Keyring, batch *stego.Batch, b *bus.Bus, logger *zap.Logger) *stego.Orchestrator {
	return stego.NewOrchestrator(tc, sessions, keys, batch, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, cfg *config.Config, core *Core, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if !p.AutoJoin {
				// The UI drives Join after prompting for a name.
				return nil
			}
			// Background tasks outlive the start hook's context.
			_, err := core.Join(context.Background(), cfg.DisplayName)
			return err
		},
		OnStop: func(_ context.Context) error {
			core.Leave()
			logger.Info("client stopped")
			return nil
		},
	})
}
