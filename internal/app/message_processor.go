package app

import (
	"context"

	"github.com/vultr740-byte/openclaw/internal/bus"
	"github.com/vultr740-byte/openclaw/internal/delivery"
	"github.com/vultr740-byte/openclaw/internal/logger"
)

// StartMessageProcessing follows inbound chat traffic so that announcements
// addressed to the "last" channel go back to whoever wrote most recently.
func (a *App) StartMessageProcessing(ctx context.Context) error {
	a.mu.RLock()
	mb, router := a.messageBus, a.router
	a.mu.RUnlock()

	if mb == nil || router == nil {
		return nil
	}

	inboundCh := mb.SubscribeInbound(ctx)
	if inboundCh == nil {
		a.logger.WarnCtx(ctx, "message bus not started, inbound routes are not tracked")
		return nil
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-inboundCh:
				if !ok {
					return
				}
				a.processMessage(ctx, router, msg)
			}
		}
	}()

	return nil
}

func (a *App) processMessage(ctx context.Context, router *delivery.Router, msg bus.InboundMessage) {
	if msg.IsSystemEvent() || msg.UserID == "" {
		return
	}

	route := delivery.Route{
		Channel: string(msg.ChannelType),
		To:      msg.UserID,
	}
	if msg.Metadata != nil {
		if v, ok := msg.Metadata["account_id"].(string); ok {
			route.AccountID = v
		}
		if v, ok := msg.Metadata["thread_id"].(string); ok {
			route.ThreadID = v
		}
	}
	router.RememberRoute(route)

	a.logger.DebugCtx(ctx, "remembered last route",
		logger.Field{Key: "channel", Value: route.Channel},
		logger.Field{Key: "to", Value: route.To})
}
