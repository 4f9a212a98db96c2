package builders

import (
	"context"
	"time"

	"github.com/vultr740-byte/openclaw/internal/agentrun"
	"github.com/vultr740-byte/openclaw/internal/config"
	"github.com/vultr740-byte/openclaw/internal/logger"
)

type AgentBuilder struct {
	config    *config.Config
	logger    *logger.Logger
	workspace string
}

func NewAgentBuilder(cfg *config.Config, log *logger.Logger, ws string) *AgentBuilder {
	return &AgentBuilder{
		config:    cfg,
		logger:    log,
		workspace: ws,
	}
}

// BuildAgent returns the external command agent running in the workspace.
func (b *AgentBuilder) BuildAgent() agentrun.Agent {
	return &agentrun.ExecAgent{
		Command: b.config.Agent.Command,
		Dir:     b.workspace,
	}
}

// BuildRunner wraps agent for isolated cron turns.
func (b *AgentBuilder) BuildRunner(agent agentrun.Agent) *agentrun.Runner {
	timeout := time.Duration(b.config.Agent.TimeoutSeconds) * time.Second
	return agentrun.NewRunner(agent, timeout, b.logger)
}

// MainSessionAgent runs heartbeat turns in the main session.
func (b *AgentBuilder) MainSessionAgent(agent agentrun.Agent) agentrun.Agent {
	return &sessionAgent{agent: agent, session: b.config.Cron.MainSessionKey}
}

type sessionAgent struct {
	agent   agentrun.Agent
	session string
}

func (a *sessionAgent) Run(ctx context.Context, prompt string) (string, error) {
	return a.agent.Run(agentrun.WithSession(ctx, a.session), prompt)
}
