package app

import (
	"context"
	"fmt"

	"github.com/vultr740-byte/openclaw/internal/app/builders"
	"github.com/vultr740-byte/openclaw/internal/bus"
	"github.com/vultr740-byte/openclaw/internal/cron"
	"github.com/vultr740-byte/openclaw/internal/delivery"
)

// Initialize builds and starts all components. Whatever was started before
// a failure is left for Shutdown to stop.
func (a *App) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return nil
	}

	// 1. Application context
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.started = true

	// 2. Workspace
	wsBuilder := builders.NewWorkspaceBuilder(a.config, a.logger)
	ws, err := wsBuilder.Build()
	if err != nil {
		return err
	}

	// 3. Metrics
	metricsBuilder := builders.NewMetricsBuilder(a.config, a.logger)
	a.metrics = metricsBuilder.Build()

	// 4. Message bus
	a.messageBus = bus.New(a.config.MessageBus.Capacity, a.logger)
	if err := a.messageBus.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start message bus: %w", err)
	}

	// 5. Worker pool
	a.workerPool = wsBuilder.BuildWorkerPool(a.metrics.Workers)

	// 6. Agent
	agentBuilder := builders.NewAgentBuilder(a.config, a.logger, ws)
	agent := a.opts.Agent
	if agent == nil {
		agent = agentBuilder.BuildAgent()
	}
	a.runner = agentBuilder.BuildRunner(agent)

	// 7. Channels and delivery
	tgBuilder := builders.NewTelegramBuilder(a.config, a.logger, a.messageBus)
	var publisher delivery.Publisher = a.messageBus
	if a.opts.OneShot {
		a.telegram, err = tgBuilder.BuildDirect(a.ctx)
		if a.telegram != nil {
			publisher = a.telegram
		}
	} else {
		a.telegram, err = tgBuilder.Build(a.ctx)
	}
	if err != nil {
		return err
	}
	cronBuilder := builders.NewCronBuilder(a.config, a.logger)
	a.router = cronBuilder.BuildRouter(publisher)

	// 8. Heartbeat
	if !a.opts.OneShot {
		if err := wsBuilder.InitializeHeartbeat(ws); err != nil {
			return err
		}
		a.heartbeat = wsBuilder.BuildHeartbeatChecker(ws, agentBuilder.MainSessionAgent(agent), a.messageBus)
		if a.heartbeat != nil {
			if err := a.heartbeat.Start(); err != nil {
				return fmt.Errorf("failed to start heartbeat checker: %w", err)
			}
		}
	}

	// 9. Cron service
	deps := cron.Deps{
		SystemEvents: builders.NewSystemEventQueue(a.messageBus),
		Agent:        a.runner,
		Delivery:     a.router,
		Pool:         builders.NewWorkerPoolAdapter(a.workerPool),
		Metrics:      a.metrics.Cron,
	}
	if a.heartbeat != nil {
		deps.Heartbeat = a.heartbeat
	}
	a.cronService = cronBuilder.Build(deps)
	if !a.opts.OneShot {
		if err := a.cronService.Start(a.ctx); err != nil {
			return fmt.Errorf("failed to start cron scheduler: %w", err)
		}
	}

	// 10. Tools
	a.tools, err = builders.NewToolsBuilder(a.logger).Build(a.cronService)
	if err != nil {
		return err
	}

	// 11. Metrics endpoint
	if !a.opts.OneShot {
		a.metricsSrv, err = metricsBuilder.Serve(a.metrics)
		if err != nil {
			return err
		}
	}

	return nil
}
