package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultr740-byte/openclaw/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "debug", Format: "text", Output: "discard"})
	require.NoError(t, err)
	return log
}

func waitResult(t *testing.T, p *WorkerPool) Result {
	t.Helper()
	select {
	case r := <-p.Results():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for result")
		return Result{}
	}
}

func TestNewPool_Defaults(t *testing.T) {
	p := NewPool(0, -1, testLogger(t))

	assert.Equal(t, DefaultPoolSize, p.WorkerCount())
	assert.Equal(t, DefaultQueueSize, cap(p.taskQueue))
}

func TestWorkerPool_SubmitBeforeStart(t *testing.T) {
	p := NewPool(1, 1, testLogger(t))

	err := p.Submit(Task{ID: "t", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestWorkerPool_RunsTasks(t *testing.T) {
	p := NewPool(2, 10, testLogger(t))
	p.Start()
	defer p.Stop()

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(Task{ID: "ok", Type: "cron", Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}}))
	}

	for i := 0; i < 5; i++ {
		r := waitResult(t, p)
		assert.NoError(t, r.Error)
		assert.Equal(t, "cron", r.Type)
	}
	assert.Equal(t, int32(5), ran.Load())

	m := p.Metrics()
	assert.Equal(t, uint64(5), m.TasksSubmitted)
	assert.Equal(t, uint64(5), m.TasksCompleted)
	assert.Zero(t, m.TasksFailed)
}

func TestWorkerPool_FailuresAndPanics(t *testing.T) {
	p := NewPool(1, 10, testLogger(t))
	p.Start()
	defer p.Stop()

	boom := errors.New("boom")
	require.NoError(t, p.Submit(Task{ID: "err", Run: func(context.Context) error { return boom }}))
	assert.ErrorIs(t, waitResult(t, p).Error, boom)

	require.NoError(t, p.Submit(Task{ID: "panic", Run: func(context.Context) error { panic("kaboom") }}))
	r := waitResult(t, p)
	require.Error(t, r.Error)
	assert.Contains(t, r.Error.Error(), "kaboom")

	require.NoError(t, p.Submit(Task{ID: "norun"}))
	assert.ErrorIs(t, waitResult(t, p).Error, ErrNoRunner)

	// The worker survived the panic.
	require.NoError(t, p.Submit(Task{ID: "after", Run: func(context.Context) error { return nil }}))
	assert.NoError(t, waitResult(t, p).Error)
	assert.Equal(t, uint64(3), p.Metrics().TasksFailed)
}

func TestWorkerPool_TaskContext(t *testing.T) {
	p := NewPool(1, 1, testLogger(t))
	p.Start()
	defer p.Stop()

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "job-1")
	got := make(chan any, 1)
	require.NoError(t, p.Submit(Task{ID: "ctx", Context: ctx, Run: func(ctx context.Context) error {
		got <- ctx.Value(key{})
		return nil
	}}))

	select {
	case v := <-got:
		assert.Equal(t, "job-1", v)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestWorkerPool_StopWaitsForRunningTasks(t *testing.T) {
	p := NewPool(1, 1, testLogger(t))
	p.Start()

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, p.Submit(Task{ID: "slow", Context: context.Background(), Run: func(context.Context) error {
		close(started)
		<-release
		finished.Store(true)
		return nil
	}}))
	<-started

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Stop()
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, finished.Load())
	close(release)
	wg.Wait()
	assert.True(t, finished.Load())

	assert.ErrorIs(t, p.Submit(Task{ID: "late", Run: func(context.Context) error { return nil }}), ErrPoolStopped)
}

func TestWorkerPool_SubmitWithContextTimesOut(t *testing.T) {
	p := NewPool(1, 0, testLogger(t))
	p.Start()
	defer p.Stop()

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	require.NoError(t, p.Submit(Task{ID: "busy", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.SubmitWithContext(ctx, Task{ID: "queued", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerPool_StartStopIdempotent(t *testing.T) {
	p := NewPool(1, 1, testLogger(t))

	p.Stop()
	p.Start()
	p.Start()
	p.Stop()
	p.Stop()

	p.Start()
	require.NoError(t, p.Submit(Task{ID: "again", Run: func(context.Context) error { return nil }}))
	assert.NoError(t, waitResult(t, p).Error)
	p.Stop()
}

func TestWorkerPool_PrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := InitPrometheusMetrics("test", reg)
	p := NewPool(1, 4, testLogger(t)).WithMetrics(m)
	p.Start()
	defer p.Stop()

	require.NoError(t, p.Submit(Task{ID: "a", Type: "cron", Run: func(context.Context) error { return nil }}))
	waitResult(t, p)
	require.NoError(t, p.Submit(Task{ID: "b", Type: "cron", Run: func(context.Context) error { return errors.New("x") }}))
	waitResult(t, p)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submittedTotal.WithLabelValues("cron")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksTotal.WithLabelValues("cron", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksTotal.WithLabelValues("cron", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.running))
}
