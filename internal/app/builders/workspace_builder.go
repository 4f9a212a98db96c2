package builders

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vultr740-byte/openclaw/internal/config"
	"github.com/vultr740-byte/openclaw/internal/heartbeat"
	"github.com/vultr740-byte/openclaw/internal/logger"
	"github.com/vultr740-byte/openclaw/internal/workers"
)

const heartbeatBootstrap = `# HEARTBEAT

This file is read on every heartbeat.

## How to use

1. Read the "Tasks" section.
2. Check whether anything is due.
3. If something needs attention, do it and report what you did.
4. Otherwise reply with HEARTBEAT_OK and nothing else.

## Tasks

---

Add tasks here.
`

type WorkspaceBuilder struct {
	config *config.Config
	logger *logger.Logger
}

func NewWorkspaceBuilder(cfg *config.Config, log *logger.Logger) *WorkspaceBuilder {
	return &WorkspaceBuilder{
		config: cfg,
		logger: log,
	}
}

// Build creates the workspace directory and the directory of the job store.
func (b *WorkspaceBuilder) Build() (string, error) {
	ws := b.config.Workspace.Path
	if err := os.MkdirAll(ws, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace directory: %w", err)
	}
	storeDir := filepath.Dir(b.config.Cron.ResolveStorePath(ws))
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cron store directory: %w", err)
	}
	return ws, nil
}

// InitializeHeartbeat writes a starter HEARTBEAT.md unless one exists.
func (b *WorkspaceBuilder) InitializeHeartbeat(ws string) error {
	heartbeatPath := filepath.Join(ws, heartbeat.InstructionsFilename)
	if _, err := os.Stat(heartbeatPath); !os.IsNotExist(err) {
		return nil
	}

	b.logger.Info("creating HEARTBEAT.md bootstrap", logger.Field{Key: "path", Value: heartbeatPath})
	if err := os.WriteFile(heartbeatPath, []byte(heartbeatBootstrap), 0o644); err != nil {
		return fmt.Errorf("failed to create HEARTBEAT.md: %w", err)
	}
	return nil
}

// BuildWorkerPool creates and starts the pool that runs due jobs.
func (b *WorkspaceBuilder) BuildWorkerPool(metrics *workers.Metrics) *workers.WorkerPool {
	workerPool := workers.NewPool(b.config.Workers.PoolSize, b.config.Workers.QueueSize, b.logger).WithMetrics(metrics)
	workerPool.Start()
	return workerPool
}

// BuildHeartbeatChecker returns an unstarted checker, or nil when the
// heartbeat is disabled.
func (b *WorkspaceBuilder) BuildHeartbeatChecker(ws string, agent heartbeat.Agent, events heartbeat.EventSource) *heartbeat.Checker {
	if !b.config.Heartbeat.Enabled {
		return nil
	}
	return heartbeat.NewChecker(b.config.Heartbeat.IntervalMinutes, agent, b.logger).
		WithEvents(events, b.config.Cron.MainSessionKey).
		WithInstructions(heartbeat.NewLoader(ws, b.logger))
}
