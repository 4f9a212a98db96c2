package builders

import (
	"context"
	"fmt"

	"github.com/vultr740-byte/openclaw/internal/bus"
	"github.com/vultr740-byte/openclaw/internal/channels/telegram"
	"github.com/vultr740-byte/openclaw/internal/config"
	"github.com/vultr740-byte/openclaw/internal/logger"
)

type TelegramBuilder struct {
	config     *config.Config
	logger     *logger.Logger
	messageBus *bus.MessageBus
}

func NewTelegramBuilder(cfg *config.Config, log *logger.Logger, mb *bus.MessageBus) *TelegramBuilder {
	return &TelegramBuilder{
		config:     cfg,
		logger:     log,
		messageBus: mb,
	}
}

// Build starts the Telegram sender on the bus, or returns nil when the
// channel is disabled.
func (b *TelegramBuilder) Build(ctx context.Context) (*telegram.Sender, error) {
	if !b.config.Channels.Telegram.Enabled {
		return nil, nil
	}

	tg := telegram.New(b.config.Channels.Telegram, b.logger, b.messageBus)
	if err := tg.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start telegram sender: %w", err)
	}
	return tg, nil
}

// BuildDirect connects a sender that is called synchronously instead of
// consuming the bus.
func (b *TelegramBuilder) BuildDirect(ctx context.Context) (*telegram.Sender, error) {
	if !b.config.Channels.Telegram.Enabled {
		return nil, nil
	}

	tg := telegram.New(b.config.Channels.Telegram, b.logger, b.messageBus)
	if err := tg.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect telegram sender: %w", err)
	}
	return tg, nil
}
