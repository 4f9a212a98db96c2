// Package app wires the scheduler daemon together: message bus, worker pool,
// agent runner, heartbeat, delivery router, channel senders, cron service,
// agent tools and the metrics endpoint.
package app

import (
	"context"
	"sync"

	"github.com/vultr740-byte/openclaw/internal/agentrun"
	"github.com/vultr740-byte/openclaw/internal/app/builders"
	"github.com/vultr740-byte/openclaw/internal/bus"
	"github.com/vultr740-byte/openclaw/internal/channels/telegram"
	"github.com/vultr740-byte/openclaw/internal/config"
	"github.com/vultr740-byte/openclaw/internal/cron"
	"github.com/vultr740-byte/openclaw/internal/delivery"
	"github.com/vultr740-byte/openclaw/internal/heartbeat"
	"github.com/vultr740-byte/openclaw/internal/logger"
	"github.com/vultr740-byte/openclaw/internal/tools"
	"github.com/vultr740-byte/openclaw/internal/workers"
)

// Options adjusts how the application is wired.
type Options struct {
	// OneShot is for a single CLI operation: announcements go straight to
	// the channel senders, and the timer, heartbeat and metrics endpoint
	// stay off.
	OneShot bool
	// Agent replaces the configured command agent.
	Agent agentrun.Agent
}

// App holds every component and manages their lifecycle.
type App struct {
	config *config.Config
	logger *logger.Logger
	opts   Options

	messageBus *bus.MessageBus
	workerPool *workers.WorkerPool
	metrics    *builders.Metrics
	metricsSrv *builders.MetricsServer

	runner    *agentrun.Runner
	heartbeat *heartbeat.Checker
	router    *delivery.Router
	telegram  *telegram.Sender

	cronService *cron.Service
	tools       *tools.Registry

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	started      bool
	restartMutex sync.Mutex
}

// New creates an App. Components are built by Initialize.
func New(cfg *config.Config, log *logger.Logger) *App {
	return &App{
		config: cfg,
		logger: log,
	}
}

// WithOptions sets wiring options. Call it before Initialize.
func (a *App) WithOptions(opts Options) *App {
	a.opts = opts
	return a
}

// Run initializes the application, blocks until ctx is cancelled and then
// shuts down.
func (a *App) Run(ctx context.Context) error {
	if err := a.Initialize(ctx); err != nil {
		_ = a.Shutdown()
		return err
	}
	if err := a.StartMessageProcessing(a.ctx); err != nil {
		_ = a.Shutdown()
		return err
	}

	a.logger.Info("application is running")
	<-ctx.Done()
	return a.Shutdown()
}

// Cron returns the scheduler service.
func (a *App) Cron() *cron.Service {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cronService
}

// Tools returns the agent tool registry.
func (a *App) Tools() *tools.Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tools
}

// Router returns the delivery router.
func (a *App) Router() *delivery.Router {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.router
}

// Bus returns the message bus.
func (a *App) Bus() *bus.MessageBus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.messageBus
}

// MetricsAddr is the metrics endpoint address, empty when it is not served.
func (a *App) MetricsAddr() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.metricsSrv == nil {
		return ""
	}
	return a.metricsSrv.Addr()
}
