package builders

import (
	"fmt"

	"github.com/vultr740-byte/openclaw/internal/logger"
	"github.com/vultr740-byte/openclaw/internal/tools"
)

type ToolsBuilder struct {
	logger *logger.Logger
}

func NewToolsBuilder(log *logger.Logger) *ToolsBuilder {
	return &ToolsBuilder{logger: log}
}

// Build registers the scheduler tools backed by service.
func (b *ToolsBuilder) Build(service tools.CronService) (*tools.Registry, error) {
	registry := tools.NewRegistry()

	if err := registry.Register(tools.NewCronTool(service, b.logger)); err != nil {
		return nil, fmt.Errorf("failed to register cron tool: %w", err)
	}
	if err := registry.Register(tools.NewFollowupTool(service, b.logger)); err != nil {
		return nil, fmt.Errorf("failed to register followup tool: %w", err)
	}

	b.logger.Debug("tools registered", logger.Field{Key: "count", Value: len(registry.List())})
	return registry, nil
}
