package builders

import (
	"context"
	"time"

	"github.com/vultr740-byte/openclaw/internal/bus"
	"github.com/vultr740-byte/openclaw/internal/config"
	"github.com/vultr740-byte/openclaw/internal/cron"
	"github.com/vultr740-byte/openclaw/internal/delivery"
	"github.com/vultr740-byte/openclaw/internal/logger"
	"github.com/vultr740-byte/openclaw/internal/workers"
)

type CronBuilder struct {
	config *config.Config
	logger *logger.Logger
}

func NewCronBuilder(cfg *config.Config, log *logger.Logger) *CronBuilder {
	return &CronBuilder{
		config: cfg,
		logger: log,
	}
}

// Options returns the service options described by the config.
func (b *CronBuilder) Options() cron.Options {
	return cron.Options{
		StorePath:      b.config.Cron.ResolveStorePath(b.config.Workspace.Path),
		Enabled:        b.config.Cron.Enabled,
		Tick:           time.Duration(b.config.Cron.TickSeconds) * time.Second,
		MainSessionKey: b.config.Cron.MainSessionKey,
	}
}

// Build creates the scheduler service. It is not started.
func (b *CronBuilder) Build(deps cron.Deps) *cron.Service {
	return cron.New(b.Options(), deps, b.logger)
}

// BuildStandalone creates a service for store edits only: add, list and
// remove work, running a job fails for lack of collaborators.
func (b *CronBuilder) BuildStandalone() *cron.Service {
	opts := b.Options()
	opts.Enabled = false
	return cron.New(opts, cron.Deps{}, b.logger)
}

// BuildRouter creates the delivery router publishing announcements to pub.
func (b *CronBuilder) BuildRouter(pub delivery.Publisher) *delivery.Router {
	return delivery.NewRouter(pub, delivery.Options{
		Default: delivery.Route{
			Channel: b.config.Delivery.DefaultChannel,
			To:      b.config.Delivery.DefaultTo,
		},
		WebhookTimeout: time.Duration(b.config.Delivery.Webhook.TimeoutSeconds) * time.Second,
	}, b.logger)
}

// NewSystemEventQueue queues system events as inbound bus messages.
func NewSystemEventQueue(mb *bus.MessageBus) cron.SystemEventQueue {
	return &systemEventQueue{bus: mb}
}

type systemEventQueue struct {
	bus *bus.MessageBus
}

func (q *systemEventQueue) EnqueueSystemEvent(text string, opts cron.SystemEventOptions) error {
	return q.bus.PublishSystemEvent(opts.SessionKey, text)
}

// NewWorkerPoolAdapter runs cron tasks on pool.
func NewWorkerPoolAdapter(pool *workers.WorkerPool) cron.WorkerPool {
	return &workerPoolAdapter{pool: pool}
}

type workerPoolAdapter struct {
	pool *workers.WorkerPool
}

func (a *workerPoolAdapter) Submit(task cron.Task) error {
	return a.pool.Submit(workers.Task{
		ID:      task.ID,
		Type:    task.Type,
		Context: task.Context,
		Run: func(ctx context.Context) error {
			task.Run(ctx)
			return nil
		},
	})
}
