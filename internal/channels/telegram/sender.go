// Package telegram delivers announcements to Telegram chats. The sender
// subscribes to outbound bus messages addressed to the telegram channel and
// sends them through the Bot API under a rate limit.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mymmrac/telego"
	"golang.org/x/time/rate"

	"github.com/vultr740-byte/openclaw/internal/bus"
	"github.com/vultr740-byte/openclaw/internal/config"
	"github.com/vultr740-byte/openclaw/internal/logger"
)

// ErrInvalidRecipient is returned for a recipient that is neither a chat id
// nor an @username.
var ErrInvalidRecipient = errors.New("invalid telegram recipient")

// OutboundSource provides outbound bus messages.
type OutboundSource interface {
	SubscribeOutbound(ctx context.Context) <-chan bus.OutboundMessage
}

// Sender sends outbound telegram messages.
type Sender struct {
	cfg     config.TelegramConfig
	logger  *logger.Logger
	source  OutboundSource
	bot     BotInterface
	limiter *rate.Limiter

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	sent   atomic.Uint64
	failed atomic.Uint64
}

// New creates a Sender. The bot is created from cfg.Token on Start unless
// WithBot supplied one.
func New(cfg config.TelegramConfig, log *logger.Logger, source OutboundSource) *Sender {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Inf
	}
	return &Sender{
		cfg:     cfg,
		logger:  log,
		source:  source,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// WithBot sets the Bot API client.
func (s *Sender) WithBot(bot BotInterface) *Sender {
	s.bot = bot
	return s
}

// Start connects to Telegram and begins consuming outbound messages. It is a
// no-op when the channel is disabled or already running.
func (s *Sender) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled {
		s.logger.Info("telegram sender disabled in config")
		return nil
	}
	if s.cancel != nil {
		return nil
	}
	if err := s.connectLocked(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	ch := s.source.SubscribeOutbound(runCtx)
	if ch == nil {
		cancel()
		return fmt.Errorf("message bus is not started")
	}

	s.cancel = cancel
	s.done = make(chan struct{})
	go s.handleOutbound(runCtx, ch, s.done)
	return nil
}

// Connect initializes the bot without consuming the bus, for callers that
// only use Send or PublishOutbound.
func (s *Sender) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Sender) connectLocked(ctx context.Context) error {
	if s.bot == nil {
		if s.cfg.Token == "" {
			return fmt.Errorf("telegram token is required")
		}
		bot, err := telego.NewBot(s.cfg.Token)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram bot: %w", err)
		}
		s.bot = NewBotAdapter(bot)
	}

	me, err := s.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	s.logger.Info("telegram bot initialized",
		logger.Field{Key: "bot_id", Value: me.ID},
		logger.Field{Key: "username", Value: me.Username})
	return nil
}

// PublishOutbound sends msg right away instead of queueing it. Messages for
// other channels are rejected.
func (s *Sender) PublishOutbound(msg bus.OutboundMessage) error {
	if msg.ChannelType != bus.ChannelTypeTelegram {
		return fmt.Errorf("telegram sender cannot deliver to channel %q", msg.ChannelType)
	}
	if err := s.Send(context.Background(), msg); err != nil {
		s.failed.Add(1)
		return err
	}
	s.sent.Add(1)
	return nil
}

// Stop stops consuming and waits for the message in progress.
func (s *Sender) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	s.logger.Info("telegram sender stopped",
		logger.Field{Key: "sent", Value: s.sent.Load()},
		logger.Field{Key: "failed", Value: s.failed.Load()})
	return nil
}

func (s *Sender) handleOutbound(ctx context.Context, ch <-chan bus.OutboundMessage, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.ChannelType != bus.ChannelTypeTelegram {
				continue
			}
			if err := s.Send(ctx, msg); err != nil {
				s.failed.Add(1)
				s.logger.ErrorCtx(ctx, "failed to send telegram message", err,
					logger.Field{Key: "to", Value: msg.UserID},
					logger.Field{Key: "correlation_id", Value: msg.CorrelationID})
				continue
			}
			s.sent.Add(1)
		}
	}
}

// Send delivers one message, waiting for the rate limiter first. Markup
// Telegram cannot parse is resent as plain text, and a rate-limit response
// is retried once after the requested delay.
func (s *Sender) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if s.bot == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	params, err := s.prepareMessage(msg)
	if err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	err = s.send(ctx, &params)
	if err == nil {
		return nil
	}

	if d, ok := retryAfter(err); ok {
		s.logger.WarnCtx(ctx, "telegram rate limited, retrying",
			logger.Field{Key: "retry_after", Value: d.String()})
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
		err = s.send(ctx, &params)
		if err == nil {
			return nil
		}
	}

	if isParseError(err) && params.ParseMode != "" {
		s.logger.WarnCtx(ctx, "telegram rejected markup, sending plain text",
			logger.Field{Key: "correlation_id", Value: msg.CorrelationID})
		params.ParseMode = ""
		params.Text = StripFormatting(msg.Content)
		err = s.send(ctx, &params)
	}
	return err
}

func (s *Sender) send(ctx context.Context, params *telego.SendMessageParams) error {
	timeout := time.Duration(s.cfg.SendTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := s.bot.SendMessage(sendCtx, params)
	return err
}

func (s *Sender) prepareMessage(msg bus.OutboundMessage) (telego.SendMessageParams, error) {
	chatID, err := parseChatID(msg.UserID)
	if err != nil {
		return telego.SendMessageParams{}, err
	}
	if strings.TrimSpace(msg.Content) == "" {
		return telego.SendMessageParams{}, fmt.Errorf("empty message for chat %s", msg.UserID)
	}

	params := telego.SendMessageParams{
		ChatID:              chatID,
		Text:                msg.Content,
		DisableNotification: s.cfg.QuietMode,
	}
	if msg.ThreadID != "" {
		thread, err := strconv.Atoi(msg.ThreadID)
		if err != nil {
			return telego.SendMessageParams{}, fmt.Errorf("invalid thread id %q: %w", msg.ThreadID, err)
		}
		params.MessageThreadID = thread
	}
	if hasMarkdown(msg.Content) {
		params.ParseMode = telego.ModeHTML
		params.Text = MarkdownToHTML(msg.Content)
	}
	return params, nil
}

// parseChatID accepts a numeric chat id, optionally prefixed "telegram:",
// or an @username.
func parseChatID(to string) (telego.ChatID, error) {
	to = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(to), string(bus.ChannelTypeTelegram)+":"))
	if strings.HasPrefix(to, "@") && len(to) > 1 {
		return telego.ChatID{Username: to}, nil
	}
	id, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return telego.ChatID{}, fmt.Errorf("%w: %q", ErrInvalidRecipient, to)
	}
	return telego.ChatID{ID: id}, nil
}
