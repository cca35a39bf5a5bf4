package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/genricoloni/midicontrol/internal/config"
	"github.com/genricoloni/midicontrol/internal/dispatcher"
	"github.com/genricoloni/midicontrol/internal/domain"
	"github.com/genricoloni/midicontrol/internal/engine"
	"github.com/genricoloni/midicontrol/internal/host"
	"github.com/genricoloni/midicontrol/internal/lifecycle"
	"github.com/genricoloni/midicontrol/internal/mpd"
	"github.com/genricoloni/midicontrol/internal/mpris"
	"github.com/genricoloni/midicontrol/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Player backends
const (
	backendMpris = "mpris"
	backendMpd   = "mpd"
)

// AppOptions is the complete dependency graph of the daemon
var AppOptions = fx.Options(
	fx.Provide(
		newLogLevel,
		newLogger,
		fx.Annotate(config.NewAppConfig, fx.As(new(domain.Config))),
		newRegistry,
		newServiceHost,
		newTransportFactory,
		dispatcher.NewDispatcher,
		fx.Annotate(lifecycle.NewController, fx.As(new(domain.Plugin))),
		newMonitor,
		engine.NewEngine,
	),
	fx.Invoke(applyLogLevel, registerHooks),
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		AppOptions,
	)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "midicontrol: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()

	if err := app.Stop(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "midicontrol: %v\n", err)
		os.Exit(1)
	}
}

// newLogLevel returns the shared level; it is raised or lowered once config is loaded
func newLogLevel() zap.AtomicLevel {
	return zap.NewAtomicLevelAt(zap.InfoLevel)
}

// newLogger creates a production zap logger bound to level
func newLogger(level zap.AtomicLevel) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// applyLogLevel switches the logger to the configured level
func applyLogLevel(level zap.AtomicLevel, cfg domain.Config, logger *zap.Logger) {
	if err := level.UnmarshalText([]byte(cfg.GetLogLevel())); err != nil {
		logger.Warn("Invalid log level, keeping info",
			zap.String("level", cfg.GetLogLevel()),
			zap.Error(err))
	}
}

// newRegistry creates the service registry with the configured player backend
func newRegistry(logger *zap.Logger, cfg domain.Config) (*host.Registry, error) {
	provider, err := newPlayerProvider(logger, cfg)
	if err != nil {
		return nil, err
	}

	r := host.NewRegistry(logger.Named("host"))
	r.Register(domain.PlayerServiceID, provider)
	return r, nil
}

// newPlayerProvider returns a provider that connects to the player on first use
func newPlayerProvider(logger *zap.Logger, cfg domain.Config) (host.Provider, error) {
	switch backend := cfg.GetPlayerBackend(); backend {
	case backendMpris:
		return func(ctx context.Context) (domain.Capability, error) {
			p, err := mpris.Dial(logger.Named("mpris"), cfg.GetMprisPlayer())
			if err != nil {
				return nil, err
			}
			return p, nil
		}, nil

	case backendMpd:
		dial := mpd.NewDialer(cfg.GetMpdNetwork(), cfg.GetMpdAddress(), cfg.GetMpdPassword())
		return func(ctx context.Context) (domain.Capability, error) {
			p, err := mpd.NewPlayer(logger.Named("mpd"), dial)
			if err != nil {
				return nil, err
			}
			return p, nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown player backend %q", backend)
	}
}

// newServiceHost exposes the registry to the engine
func newServiceHost(r *host.Registry) engine.ServiceHost {
	return r
}

// newTransportFactory selects the MIDI driver
func newTransportFactory(logger *zap.Logger, cfg domain.Config) (domain.TransportFactory, error) {
	return transport.NewFactory(logger.Named("midi"), cfg)
}

// newMonitor returns the notification source matching the player backend
func newMonitor(logger *zap.Logger, cfg domain.Config) (domain.Monitor, error) {
	switch backend := cfg.GetPlayerBackend(); backend {
	case backendMpris:
		return mpris.NewMonitor(logger.Named("mpris")), nil
	case backendMpd:
		return mpd.NewMonitor(logger.Named("mpd"), cfg.GetMpdNetwork(), cfg.GetMpdAddress(), cfg.GetMpdPassword()), nil
	default:
		return nil, fmt.Errorf("unknown player backend %q", backend)
	}
}

// registerHooks sets up application lifecycle hooks
func registerHooks(lc fx.Lifecycle, logger *zap.Logger, e *engine.Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("MIDIControl Daemon Started")
			return e.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			return e.Stop(ctx)
		},
	})
}
