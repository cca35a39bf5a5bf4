package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/genricoloni/midicontrol/internal/domain"
	"go.uber.org/zap"
)

// ServiceHost is the capability registry the engine hands to the plugin
type ServiceHost interface {
	domain.Services

	// Close releases every service still held
	Close() error
}

// Engine is the host runtime. It drives one plugin through
// Initialize/Notify/Finalize and forwards player notifications to it.
type Engine struct {
	logger   *zap.Logger
	plugin   domain.Plugin
	services ServiceHost
	monitor  domain.Monitor

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a new host runtime
func NewEngine(
	logger *zap.Logger,
	plugin domain.Plugin,
	services ServiceHost,
	mon domain.Monitor,
) *Engine {
	return &Engine{
		logger:   logger,
		plugin:   plugin,
		services: services,
		monitor:  mon,
	}
}

// Start initializes the plugin and launches the notification loop.
// It returns immediately (non-blocking). A fatal plugin status aborts startup.
func (e *Engine) Start(ctx context.Context) error {
	info := e.plugin.Info()
	e.logger.Info("Engine starting...",
		zap.String("plugin", info.Name),
		zap.String("author", info.Author),
		zap.String("category", info.Category))

	status, err := e.plugin.Initialize(ctx, e.services)
	switch status {
	case domain.StatusFatal:
		e.logger.Error("Plugin failed to initialize",
			zap.String("plugin", info.Name),
			zap.Error(err))
		if cerr := e.services.Close(); cerr != nil {
			e.logger.Warn("Failed to close services", zap.Error(cerr))
		}
		return fmt.Errorf("plugin %s: %w", info.Name, err)
	case domain.StatusPartialSuccess:
		e.logger.Warn("Plugin running degraded", zap.String("plugin", info.Name))
	default:
		e.logger.Info("Plugin initialized", zap.String("plugin", info.Name))
	}

	// The start context only bounds startup; the loop lives until Stop
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	if e.monitor != nil {
		e.wg.Add(2)
		go e.runMonitor(runCtx)
		go e.runLoop(runCtx)
	}
	return nil
}

// runMonitor runs the player monitor. Its failure only disables notifications.
func (e *Engine) runMonitor(ctx context.Context) {
	defer e.wg.Done()
	if err := e.monitor.Start(ctx); err != nil && ctx.Err() == nil {
		e.logger.Warn("Player monitor unavailable, notifications disabled", zap.Error(err))
	}
}

// runLoop forwards monitor notifications to the plugin
func (e *Engine) runLoop(ctx context.Context) {
	defer e.wg.Done()
	events := e.monitor.Events()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine loop stopped")
			return

		case n, ok := <-events:
			if !ok {
				e.logger.Info("Monitor events channel closed")
				return
			}
			e.logger.Debug("Forwarding notification",
				zap.String("kind", string(n.Kind)),
				zap.String("source", n.Source))
			e.plugin.Notify(n)
		}
	}
}

// Stop stops notifications, finalizes the plugin and releases all services
func (e *Engine) Stop(ctx context.Context) error {
	e.logger.Info("Engine stopping...")

	if e.cancel != nil {
		e.cancel()
	}
	if e.monitor != nil {
		if err := e.monitor.Stop(ctx); err != nil {
			e.logger.Warn("Failed to stop player monitor", zap.Error(err))
		}
	}
	e.wg.Wait()

	status := e.plugin.Finalize()
	e.logger.Info("Plugin finalized", zap.Stringer("status", status))

	if err := e.services.Close(); err != nil {
		e.logger.Warn("Failed to close services", zap.Error(err))
		return err
	}

	e.logger.Info("Engine stopped")
	return nil
}
