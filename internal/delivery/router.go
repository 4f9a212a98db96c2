// Package delivery carries out the delivery plans the scheduler resolves
// for finished agent jobs: announcements go out through the message bus to
// a channel sender, webhooks are posted over HTTP.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vultr740-byte/openclaw/internal/bus"
	"github.com/vultr740-byte/openclaw/internal/cron"
	"github.com/vultr740-byte/openclaw/internal/logger"
	"github.com/vultr740-byte/openclaw/internal/version"
)

// DefaultWebhookTimeout bounds a webhook POST.
const DefaultWebhookTimeout = 10 * time.Second

var (
	// ErrNoRoute means an announcement had no channel or recipient to go to.
	ErrNoRoute = errors.New("no delivery route")
	// ErrUnknownMode is returned for a plan mode the router does not handle.
	ErrUnknownMode = errors.New("unknown delivery mode")
)

// Publisher accepts outbound messages for channel senders.
type Publisher interface {
	PublishOutbound(msg bus.OutboundMessage) error
}

// Route is a concrete announcement destination.
type Route struct {
	Channel   string `json:"channel"`
	To        string `json:"to"`
	AccountID string `json:"accountId,omitempty"`
	ThreadID  string `json:"threadId,omitempty"`
}

// Options configures a Router.
type Options struct {
	// Default is used for "last" when no route has been remembered yet.
	Default        Route
	WebhookTimeout time.Duration
	HTTPClient     *http.Client
}

// Router implements cron.DeliverySink.
type Router struct {
	pub     Publisher
	client  *http.Client
	timeout time.Duration
	logger  *logger.Logger

	mu   sync.RWMutex
	last Route
	def  Route
}

// NewRouter creates a Router publishing announcements to pub.
func NewRouter(pub Publisher, opts Options, log *logger.Logger) *Router {
	if opts.WebhookTimeout <= 0 {
		opts.WebhookTimeout = DefaultWebhookTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Router{
		pub:     pub,
		client:  client,
		timeout: opts.WebhookTimeout,
		logger:  log,
		def:     opts.Default,
	}
}

// RememberRoute records where the user last talked to the agent from. It is
// what the "last" channel resolves to.
func (r *Router) RememberRoute(route Route) {
	if route.Channel == "" || route.Channel == cron.LastChannel || route.To == "" {
		return
	}
	r.mu.Lock()
	r.last = route
	r.mu.Unlock()
}

// LastRoute returns the remembered route, or the configured default.
func (r *Router) LastRoute() (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last.Channel != "" {
		return r.last, true
	}
	if r.def.Channel != "" && r.def.To != "" {
		return r.def, true
	}
	return Route{}, false
}

// Deliver performs plan for msg. Each call is a single attempt.
func (r *Router) Deliver(ctx context.Context, plan cron.DeliveryPlan, msg cron.DeliveryMessage) error {
	switch plan.Mode {
	case cron.DeliveryNone:
		return nil
	case cron.DeliveryAnnounce:
		return r.announce(ctx, plan, msg)
	case cron.DeliveryWebhook:
		return r.webhook(ctx, plan, msg)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, plan.Mode)
	}
}

// resolve turns a plan into a concrete route, filling "last" and any
// missing recipient from the remembered route.
func (r *Router) resolve(plan cron.DeliveryPlan) (Route, error) {
	route := Route{
		Channel:   plan.Channel,
		To:        strings.TrimSpace(plan.To),
		AccountID: plan.AccountID,
		ThreadID:  threadString(plan.ThreadID),
	}

	if route.Channel == "" || route.Channel == cron.LastChannel {
		last, ok := r.LastRoute()
		if !ok {
			return Route{}, fmt.Errorf("%w: channel %q has no remembered route", ErrNoRoute, cron.LastChannel)
		}
		route.Channel = last.Channel
		if route.To == "" {
			route.To = last.To
			if route.ThreadID == "" {
				route.ThreadID = last.ThreadID
			}
		}
		if route.AccountID == "" {
			route.AccountID = last.AccountID
		}
	}

	if route.To == "" {
		if last, ok := r.LastRoute(); ok && last.Channel == route.Channel {
			route.To = last.To
		}
	}
	if route.To == "" {
		return Route{}, fmt.Errorf("%w: no recipient for channel %q", ErrNoRoute, route.Channel)
	}
	return route, nil
}

func (r *Router) announce(ctx context.Context, plan cron.DeliveryPlan, msg cron.DeliveryMessage) error {
	route, err := r.resolve(plan)
	if err != nil {
		return err
	}

	out := bus.NewOutboundMessage(bus.ChannelType(route.Channel), route.To, "", msg.Summary, msg.JobID,
		map[string]any{"cron_job_id": msg.JobID, "cron_job_name": msg.JobName})
	out.AccountID = route.AccountID
	out.ThreadID = route.ThreadID

	if err := r.pub.PublishOutbound(*out); err != nil {
		return fmt.Errorf("failed to publish announcement: %w", err)
	}

	r.logger.InfoCtx(ctx, "cron announcement published",
		logger.Field{Key: "job_id", Value: msg.JobID},
		logger.Field{Key: "channel", Value: route.Channel},
		logger.Field{Key: "to", Value: route.To})
	return nil
}

func (r *Router) webhook(ctx context.Context, plan cron.DeliveryPlan, msg cron.DeliveryMessage) error {
	url := strings.TrimSpace(plan.To)
	if url == "" {
		return fmt.Errorf("%w: webhook url is empty", ErrNoRoute)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode webhook body: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &WebhookError{URL: url, StatusCode: resp.StatusCode}
	}

	r.logger.InfoCtx(ctx, "cron webhook delivered",
		logger.Field{Key: "job_id", Value: msg.JobID},
		logger.Field{Key: "status_code", Value: resp.StatusCode})
	return nil
}

// WebhookError is a non-2xx webhook response.
type WebhookError struct {
	URL        string
	StatusCode int
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook %s returned status %d", e.URL, e.StatusCode)
}

func threadString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return ""
		}
		return strconv.FormatInt(int64(t), 10)
	default:
		return fmt.Sprint(t)
	}
}
