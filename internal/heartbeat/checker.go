// Package heartbeat runs the host's periodic agent turn for the main
// session. Queued system events are drained into each heartbeat, and the
// scheduler can ask for an immediate heartbeat instead of waiting for the
// next interval.
package heartbeat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vultr740-byte/openclaw/internal/bus"
	"github.com/vultr740-byte/openclaw/internal/logger"
)

// heartbeatPrompt is the prompt used for heartbeat checks.
const heartbeatPrompt = "Read HEARTBEAT.md from workspace. Follow it strictly. Do not infer or repeat old tasks from prior chats. If nothing needs attention, reply HEARTBEAT_OK."

// OKToken is the reply that means nothing needed attention.
const OKToken = "HEARTBEAT_OK"

// maxAckExtra is how much text may surround the token in a reply that still
// counts as a bare acknowledgement.
const maxAckExtra = 30

// Agent runs one prompt and returns the reply.
type Agent interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// EventSource delivers inbound messages; system events for the main session
// are picked up by the checker.
type EventSource interface {
	SubscribeInbound(ctx context.Context) <-chan bus.InboundMessage
}

// Checker periodically runs a heartbeat turn through the agent.
type Checker struct {
	interval   time.Duration
	agent      Agent
	events     EventSource
	sessionKey string
	loader     *Loader
	logger     *logger.Logger

	wake chan struct{}

	mu      sync.Mutex
	pending []string
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// NewChecker creates a checker that runs every intervalMinutes.
func NewChecker(intervalMinutes int, agent Agent, logger *logger.Logger) *Checker {
	return newChecker(time.Duration(intervalMinutes)*time.Minute, agent, logger)
}

func newChecker(interval time.Duration, agent Agent, logger *logger.Logger) *Checker {
	return &Checker{
		interval: interval,
		agent:    agent,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// WithEvents drains system events addressed to sessionKey from src.
func (c *Checker) WithEvents(src EventSource, sessionKey string) *Checker {
	c.events = src
	c.sessionKey = sessionKey
	return c
}

// WithInstructions includes the workspace HEARTBEAT.md in every prompt.
func (c *Checker) WithInstructions(l *Loader) *Checker {
	c.loader = l
	return c
}

// Start begins the heartbeat loop. Calling it twice is a no-op.
func (c *Checker) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.started = true

	if c.events != nil {
		if ch := c.events.SubscribeInbound(c.ctx); ch != nil {
			go c.collect(ch)
		}
	}
	go c.run(c.ctx)

	c.logger.Info("heartbeat checker started", logger.Field{Key: "interval", Value: c.interval.String()})
	return nil
}

// Stop halts the loop. Calling it twice is a no-op.
func (c *Checker) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}

	c.cancel()
	c.started = false
	c.logger.Info("heartbeat checker stopping")
	return nil
}

// RequestHeartbeatNow schedules a heartbeat as soon as possible. Requests
// made while one is already pending coalesce into it.
func (c *Checker) RequestHeartbeatNow() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// AddEvent queues a system event for the next heartbeat.
func (c *Checker) AddEvent(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, text)
}

// Pending returns the number of queued system events.
func (c *Checker) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Checker) collect(ch <-chan bus.InboundMessage) {
	for msg := range ch {
		if !msg.IsSystemEvent() || msg.SessionID != c.sessionKey {
			continue
		}
		c.AddEvent(msg.Content)
	}
}

func (c *Checker) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("heartbeat checker stopped")
			return
		case <-ticker.C:
			c.check(ctx)
		case <-c.wake:
			c.check(ctx)
		}
	}
}

// check performs a single heartbeat turn.
func (c *Checker) check(ctx context.Context) {
	c.mu.Lock()
	events := c.pending
	c.pending = nil
	c.mu.Unlock()

	prompt := c.buildPrompt(events)
	c.logger.Debug("performing heartbeat check", logger.Field{Key: "events", Value: len(events)})

	response, err := c.agent.Run(ctx, prompt)
	if err != nil {
		c.logger.Error("heartbeat check failed", err)
		// Put the events back so the next heartbeat still sees them.
		c.mu.Lock()
		c.pending = append(events, c.pending...)
		c.mu.Unlock()
		return
	}
	c.processResponse(response)
}

func (c *Checker) buildPrompt(events []string) string {
	var sb strings.Builder
	sb.WriteString(heartbeatPrompt)

	if c.loader != nil {
		instructions, err := c.loader.Load()
		if err != nil {
			c.logger.Warn("failed to load heartbeat instructions", logger.Field{Key: "error", Value: err.Error()})
		}
		if instructions != "" {
			sb.WriteString("\n\n## HEARTBEAT.md\n\n")
			sb.WriteString(instructions)
		}
	}

	if len(events) > 0 {
		sb.WriteString("\n\n## System events\n")
		for _, e := range events {
			sb.WriteString("\n- ")
			sb.WriteString(e)
		}
	}
	return sb.String()
}

func (c *Checker) processResponse(response string) {
	if strings.TrimSpace(response) == "" {
		c.logger.Warn("heartbeat check returned empty response")
		return
	}
	if IsOKResponse(response) {
		c.logger.Debug("heartbeat check: all good")
		return
	}
	c.logger.Info("heartbeat check: action taken by agent", logger.Field{Key: "response", Value: response})
}

// IsOKResponse reports whether a reply is only the heartbeat
// acknowledgement, optionally wrapped in a little whitespace, markup or
// punctuation.
func IsOKResponse(response string) bool {
	s := strings.TrimSpace(response)
	if !strings.Contains(s, OKToken) {
		return false
	}
	rest := strings.TrimSpace(strings.Replace(s, OKToken, "", 1))
	rest = strings.Trim(rest, "*_`.!\"' \n\t")
	return len(rest) <= maxAckExtra && !strings.Contains(rest, "\n")
}
