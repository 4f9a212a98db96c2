package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultr740-byte/openclaw/internal/bus"
	"github.com/vultr740-byte/openclaw/internal/cron"
	"github.com/vultr740-byte/openclaw/internal/logger"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []bus.OutboundMessage
	err  error
}

func (p *fakePublisher) PublishOutbound(msg bus.OutboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "debug", Format: "text", Output: "discard"})
	require.NoError(t, err)
	return log
}

func sampleMessage() cron.DeliveryMessage {
	return cron.DeliveryMessage{JobID: "job-1", JobName: "report", Status: cron.StatusOK, Summary: "All done.", RanAtMs: 1_700_000_000_000}
}

func TestRouter_AnnounceExplicitRoute(t *testing.T) {
	pub := &fakePublisher{}
	r := NewRouter(pub, Options{}, testLogger(t))

	err := r.Deliver(context.Background(), cron.DeliveryPlan{
		Mode:      cron.DeliveryAnnounce,
		Channel:   "telegram",
		To:        " 12345 ",
		AccountID: "bot-a",
		ThreadID:  int64(7),
		Requested: true,
	}, sampleMessage())
	require.NoError(t, err)

	require.Len(t, pub.msgs, 1)
	got := pub.msgs[0]
	assert.Equal(t, bus.ChannelTypeTelegram, got.ChannelType)
	assert.Equal(t, "12345", got.UserID)
	assert.Equal(t, "bot-a", got.AccountID)
	assert.Equal(t, "7", got.ThreadID)
	assert.Equal(t, "All done.", got.Content)
	assert.Equal(t, "job-1", got.CorrelationID)
}

func TestRouter_AnnounceLastUsesRememberedRoute(t *testing.T) {
	pub := &fakePublisher{}
	r := NewRouter(pub, Options{Default: Route{Channel: "telegram", To: "default-chat"}}, testLogger(t))
	plan := cron.DeliveryPlan{Mode: cron.DeliveryAnnounce, Channel: cron.LastChannel, Requested: true}

	require.NoError(t, r.Deliver(context.Background(), plan, sampleMessage()))
	assert.Equal(t, "default-chat", pub.msgs[0].UserID)

	r.RememberRoute(Route{Channel: "telegram", To: "99", ThreadID: "3"})
	require.NoError(t, r.Deliver(context.Background(), plan, sampleMessage()))
	assert.Equal(t, "99", pub.msgs[1].UserID)
	assert.Equal(t, "3", pub.msgs[1].ThreadID)

	// An explicit recipient keeps its own thread.
	plan.To = "55"
	require.NoError(t, r.Deliver(context.Background(), plan, sampleMessage()))
	assert.Equal(t, "55", pub.msgs[2].UserID)
	assert.Empty(t, pub.msgs[2].ThreadID)
}

func TestRouter_AnnounceWithoutRoute(t *testing.T) {
	r := NewRouter(&fakePublisher{}, Options{}, testLogger(t))

	err := r.Deliver(context.Background(), cron.DeliveryPlan{Mode: cron.DeliveryAnnounce, Channel: cron.LastChannel}, sampleMessage())
	assert.ErrorIs(t, err, ErrNoRoute)

	err = r.Deliver(context.Background(), cron.DeliveryPlan{Mode: cron.DeliveryAnnounce, Channel: "telegram"}, sampleMessage())
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestRouter_RememberRouteIgnoresIncomplete(t *testing.T) {
	r := NewRouter(&fakePublisher{}, Options{}, testLogger(t))

	r.RememberRoute(Route{Channel: cron.LastChannel, To: "1"})
	r.RememberRoute(Route{Channel: "telegram"})
	_, ok := r.LastRoute()
	assert.False(t, ok)
}

func TestRouter_AnnouncePublishError(t *testing.T) {
	pub := &fakePublisher{err: bus.ErrQueueFull}
	r := NewRouter(pub, Options{}, testLogger(t))

	err := r.Deliver(context.Background(), cron.DeliveryPlan{Mode: cron.DeliveryAnnounce, Channel: "telegram", To: "1"}, sampleMessage())
	assert.ErrorIs(t, err, bus.ErrQueueFull)
}

func TestRouter_None(t *testing.T) {
	pub := &fakePublisher{}
	r := NewRouter(pub, Options{}, testLogger(t))

	require.NoError(t, r.Deliver(context.Background(), cron.DeliveryPlan{Mode: cron.DeliveryNone}, sampleMessage()))
	assert.Empty(t, pub.msgs)

	err := r.Deliver(context.Background(), cron.DeliveryPlan{Mode: "carrier-pigeon"}, sampleMessage())
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestRouter_Webhook(t *testing.T) {
	var (
		gotBody   []byte
		gotHeader http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotHeader = req.Header.Clone()
		gotBody, _ = io.ReadAll(req.Body)
		assert.Equal(t, http.MethodPost, req.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r := NewRouter(&fakePublisher{}, Options{}, testLogger(t))
	err := r.Deliver(context.Background(), cron.DeliveryPlan{Mode: cron.DeliveryWebhook, To: srv.URL}, sampleMessage())
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Contains(t, gotHeader.Get("User-Agent"), "openclaw-cron/")

	var body map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &body))
	assert.Equal(t, "job-1", body["jobId"])
	assert.Equal(t, "report", body["jobName"])
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "All done.", body["summary"])
}

func TestRouter_WebhookNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewRouter(&fakePublisher{}, Options{}, testLogger(t))
	err := r.Deliver(context.Background(), cron.DeliveryPlan{Mode: cron.DeliveryWebhook, To: srv.URL}, sampleMessage())

	var whErr *WebhookError
	require.True(t, errors.As(err, &whErr))
	assert.Equal(t, http.StatusBadGateway, whErr.StatusCode)
}

func TestRouter_WebhookTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-release:
		case <-req.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r := NewRouter(&fakePublisher{}, Options{WebhookTimeout: 50 * time.Millisecond}, testLogger(t))
	err := r.Deliver(context.Background(), cron.DeliveryPlan{Mode: cron.DeliveryWebhook, To: srv.URL}, sampleMessage())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRouter_WebhookMissingURL(t *testing.T) {
	r := NewRouter(&fakePublisher{}, Options{}, testLogger(t))

	err := r.Deliver(context.Background(), cron.DeliveryPlan{Mode: cron.DeliveryWebhook}, sampleMessage())
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestThreadString(t *testing.T) {
	assert.Equal(t, "", threadString(nil))
	assert.Equal(t, "abc", threadString("abc"))
	assert.Equal(t, "12", threadString(int64(12)))
	assert.Equal(t, "12", threadString(12.9))
}
