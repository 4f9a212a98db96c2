package cron

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vultr740-byte/openclaw/internal/logger"
)

func testLogger() *logger.Logger {
	log, err := logger.New(logger.Config{Level: "debug", Format: "text", Output: "discard"})
	if err != nil {
		panic(err)
	}
	return log
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Ms() int64 {
	return c.Now().UnixMilli()
}

type enqueuedEvent struct {
	text string
	opts SystemEventOptions
}

type fakeQueue struct {
	mu     sync.Mutex
	events []enqueuedEvent
	err    error
}

func (q *fakeQueue) EnqueueSystemEvent(text string, opts SystemEventOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, enqueuedEvent{text: text, opts: opts})
	return nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

type fakeWaker struct {
	mu    sync.Mutex
	calls int
}

func (w *fakeWaker) RequestHeartbeatNow() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
}

func (w *fakeWaker) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

type fakeAgent struct {
	mu       sync.Mutex
	requests []AgentJobRequest
	result   AgentJobResult
	err      error
	block    chan struct{}
	started  chan struct{}
	panicMsg string
}

func (a *fakeAgent) RunIsolatedAgentJob(ctx context.Context, req AgentJobRequest) (AgentJobResult, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	block, started, panicMsg := a.block, a.started, a.panicMsg
	result, err := a.result, a.err
	a.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if panicMsg != "" {
		panic(panicMsg)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return AgentJobResult{}, ctx.Err()
		}
	}
	return result, err
}

func (a *fakeAgent) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

type delivered struct {
	plan DeliveryPlan
	msg  DeliveryMessage
}

type fakeSink struct {
	mu    sync.Mutex
	calls []delivered
	err   error
}

func (s *fakeSink) Deliver(_ context.Context, plan DeliveryPlan, msg DeliveryMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, delivered{plan: plan, msg: msg})
	return s.err
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fixture struct {
	svc   *Service
	clock *testClock
	queue *fakeQueue
	waker *fakeWaker
	agent *fakeAgent
	sink  *fakeSink
	path  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock: newTestClock(),
		queue: &fakeQueue{},
		waker: &fakeWaker{},
		agent: &fakeAgent{result: AgentJobResult{Status: StatusOK, Summary: "done"}},
		sink:  &fakeSink{},
		path:  filepath.Join(t.TempDir(), "cron", "jobs.json"),
	}
	f.svc = New(Options{
		StorePath: f.path,
		Enabled:   true,
		Tick:      time.Second,
		Now:       f.clock.Now,
	}, Deps{
		SystemEvents: f.queue,
		Heartbeat:    f.waker,
		Agent:        f.agent,
		Delivery:     f.sink,
	}, testLogger())
	t.Cleanup(func() { _ = f.svc.Stop() })
	return f
}

func (f *fixture) add(t *testing.T, in JobCreate) Job {
	t.Helper()
	job, err := f.svc.Add(context.Background(), in)
	require.NoError(t, err)
	return job
}

func (f *fixture) ids(t *testing.T) []string {
	t.Helper()
	jobs, err := f.svc.List(ListOptions{IncludeDisabled: true})
	require.NoError(t, err)
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids
}

func everyNow(f *fixture, every time.Duration) Schedule {
	return Every(every, f.clock.Now())
}

func followupCreate(f *fixture, expiresAtMs int64) JobCreate {
	return JobCreate{
		Name:          "followup",
		Schedule:      Every(30*time.Second, f.clock.Now()),
		SessionTarget: SessionIsolated,
		WakeMode:      WakeNow,
		Payload:       AgentTurn("check on the build", 60),
		Followup:      &Followup{ExpiresAtMs: int64Ptr(expiresAtMs), StopOnReply: true},
	}
}

func boolPtr(v bool) *bool {
	return &v
}

var errBoom = errors.New("boom")
