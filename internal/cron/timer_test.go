package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// goPool runs each task on its own goroutine.
type goPool struct {
	wg    sync.WaitGroup
	mu    sync.Mutex
	tasks []Task
}

func (p *goPool) Submit(task Task) error {
	p.mu.Lock()
	p.tasks = append(p.tasks, task)
	p.mu.Unlock()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		task.Run(task.Context)
	}()
	return nil
}

type closedPool struct{}

func (closedPool) Submit(Task) error { return errors.New("pool stopped") }

func TestTimer_TickRunsDueJobsInOrder(t *testing.T) {
	f := newFixture(t)
	f.add(t, JobCreate{Schedule: Schedule{Kind: ScheduleEvery, EveryMs: 60_000, AnchorMs: f.clock.Ms()}, Payload: SystemEvent("first")})
	f.add(t, JobCreate{Schedule: Schedule{Kind: ScheduleEvery, EveryMs: 60_000, AnchorMs: f.clock.Ms() + 1}, Payload: SystemEvent("not yet")})
	f.add(t, JobCreate{Enabled: boolPtr(false), Schedule: Schedule{Kind: ScheduleEvery, EveryMs: 60_000, AnchorMs: 1}, Payload: SystemEvent("disabled")})
	f.add(t, JobCreate{Schedule: Schedule{Kind: ScheduleEvery, EveryMs: 60_000, AnchorMs: 1}, Payload: SystemEvent("second")})

	f.svc.tick()

	require.Equal(t, 2, f.queue.count())
	assert.Equal(t, "first", f.queue.events[0].text)
	assert.Equal(t, "second", f.queue.events[1].text)
}

func TestTimer_NoCompoundingCatchUp(t *testing.T) {
	f := newFixture(t)
	f.add(t, JobCreate{Schedule: Schedule{Kind: ScheduleEvery, EveryMs: 60_000, AnchorMs: f.clock.Ms()}, Payload: SystemEvent("x")})

	f.clock.Advance(time.Hour)
	for i := 0; i < 5; i++ {
		f.svc.tick()
	}
	assert.Equal(t, 1, f.queue.count())

	f.clock.Advance(time.Minute)
	f.svc.tick()
	assert.Equal(t, 2, f.queue.count())
}

func TestTimer_FailingJobDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	f.agent.err = errBoom
	failing := f.add(t, JobCreate{Schedule: Schedule{Kind: ScheduleEvery, EveryMs: 60_000, AnchorMs: 1}, Payload: AgentTurn("fails", 0)})
	f.add(t, JobCreate{Schedule: Schedule{Kind: ScheduleEvery, EveryMs: 60_000, AnchorMs: 1}, Payload: SystemEvent("fine")})

	f.svc.tick()

	assert.Equal(t, 1, f.agent.count())
	assert.Equal(t, 1, f.queue.count())
	got, err := f.svc.Get(failing.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.State.LastStatus)
	assert.True(t, got.Enabled)
}

func TestTimer_ExpiredFollowupRemovedOnTick(t *testing.T) {
	f := newFixture(t)
	in := followupCreate(f, f.clock.Ms()+1)
	in.Schedule.AnchorMs = f.clock.Ms() + time.Hour.Milliseconds()
	job := f.add(t, in)

	f.clock.Advance(time.Second)
	f.svc.tick()

	assert.NotContains(t, f.ids(t), job.ID)
	assert.Equal(t, 0, f.agent.count())
}

func TestTimer_SkipsInFlightJobs(t *testing.T) {
	f := newFixture(t)
	pool := &goPool{}
	f.svc.deps.Pool = pool
	f.agent.block = make(chan struct{})
	f.agent.started = make(chan struct{}, 4)
	job := f.add(t, JobCreate{Schedule: Schedule{Kind: ScheduleEvery, EveryMs: 1000, AnchorMs: 1}, Payload: AgentTurn("slow", 0)})

	f.svc.tick()
	<-f.agent.started

	// Still due and still running: later ticks must not start it again.
	f.svc.tick()
	f.svc.tick()
	assert.Equal(t, 1, f.agent.count())

	res, err := f.svc.Run(context.Background(), job.ID, RunModeForce)
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyRunning, res.Reason)

	close(f.agent.block)
	pool.wg.Wait()

	f.clock.Advance(time.Second)
	f.svc.tick()
	pool.wg.Wait()
	assert.Equal(t, 2, f.agent.count())

	pool.mu.Lock()
	defer pool.mu.Unlock()
	require.Len(t, pool.tasks, 2)
	assert.Equal(t, TaskTypeCron, pool.tasks[0].Type)
	assert.Contains(t, pool.tasks[0].ID, job.ID)
}

func TestTimer_StartStopIdempotent(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.Stop())
	require.NoError(t, f.svc.Start(context.Background()))
	require.NoError(t, f.svc.Start(context.Background()))

	st, err := f.svc.Status()
	require.NoError(t, err)
	assert.True(t, st.Running)

	require.NoError(t, f.svc.Stop())
	require.NoError(t, f.svc.Stop())

	st, err = f.svc.Status()
	require.NoError(t, err)
	assert.False(t, st.Running)

	require.NoError(t, f.svc.Start(context.Background()))
	require.NoError(t, f.svc.Stop())
}

func TestTimer_DisabledStartDoesNotArm(t *testing.T) {
	svc := New(Options{StorePath: t.TempDir() + "/jobs.json", Enabled: false}, Deps{}, testLogger())

	require.NoError(t, svc.Start(context.Background()))
	st, err := svc.Status()
	require.NoError(t, err)
	assert.False(t, st.Running)
	require.NoError(t, svc.Stop())
}

func TestTimer_FiresOnSchedule(t *testing.T) {
	queue := &fakeQueue{}
	svc := New(Options{
		StorePath: t.TempDir() + "/jobs.json",
		Enabled:   true,
		Tick:      time.Second,
	}, Deps{SystemEvents: queue}, testLogger())

	_, err := svc.Add(context.Background(), JobCreate{
		Schedule: Schedule{Kind: ScheduleEvery, EveryMs: 60_000, AnchorMs: time.Now().UnixMilli()},
		Payload:  SystemEvent("tick"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))
	defer func() { _ = svc.Stop() }()

	assert.Eventually(t, func() bool { return queue.count() == 1 }, 5*time.Second, 50*time.Millisecond)
}

func TestTimer_StopDoesNotCancelInFlight(t *testing.T) {
	f := newFixture(t)
	pool := &goPool{}
	f.svc.deps.Pool = pool
	f.agent.block = make(chan struct{})
	f.agent.started = make(chan struct{}, 1)
	f.agent.result = AgentJobResult{Status: StatusOK, Summary: "late"}
	job := f.add(t, JobCreate{Schedule: Schedule{Kind: ScheduleEvery, EveryMs: 1000, AnchorMs: 1}, Payload: AgentTurn("slow", 0)})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.svc.Start(ctx))
	f.svc.tick()
	<-f.agent.started

	require.NoError(t, f.svc.Stop())
	cancel()
	close(f.agent.block)
	pool.wg.Wait()

	got, err := f.svc.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, got.State.LastStatus)
}

func TestTimer_RejectedSubmitClearsInFlight(t *testing.T) {
	f := newFixture(t)
	f.svc.deps.Pool = closedPool{}
	job := f.add(t, JobCreate{Schedule: Schedule{Kind: ScheduleEvery, EveryMs: 1000, AnchorMs: 1}, Payload: SystemEvent("x")})

	f.svc.tick()

	st, err := f.svc.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, st.InFlight)

	f.svc.deps.Pool = nil
	res, err := f.svc.Run(context.Background(), job.ID, RunModeDueOnly)
	require.NoError(t, err)
	assert.True(t, res.Ran)
}

// panickingSink panics on its first delivery and records the rest.
type panickingSink struct {
	fakeSink
	once sync.Once
}

func (s *panickingSink) Deliver(ctx context.Context, plan DeliveryPlan, msg DeliveryMessage) error {
	s.once.Do(func() { panic("sink exploded") })
	return s.fakeSink.Deliver(ctx, plan, msg)
}

func TestTimer_InlinePanicDoesNotStrandLaterJobs(t *testing.T) {
	f := newFixture(t)
	sink := &panickingSink{}
	f.svc.deps.Delivery = sink
	announce := &Delivery{Mode: DeliveryAnnounce, Channel: "telegram", To: "42"}
	first := f.add(t, JobCreate{Name: "first", Schedule: Schedule{Kind: ScheduleEvery, EveryMs: 60_000, AnchorMs: 1}, Payload: AgentTurn("a", 0), Delivery: announce})
	second := f.add(t, JobCreate{Name: "second", Schedule: Schedule{Kind: ScheduleEvery, EveryMs: 60_000, AnchorMs: 1}, Payload: AgentTurn("b", 0), Delivery: announce})

	require.NotPanics(t, f.svc.tick)

	assert.Equal(t, 2, f.agent.count())
	assert.Equal(t, 1, sink.count())
	st, err := f.svc.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, st.InFlight)

	for _, id := range []string{first.ID, second.ID} {
		got, err := f.svc.Get(id)
		require.NoError(t, err)
		assert.Equal(t, StatusOK, got.State.LastStatus)
		assert.Equal(t, 1, got.State.RunCount)
	}

	res, err := f.svc.Run(context.Background(), second.ID, RunModeForce)
	require.NoError(t, err)
	assert.True(t, res.Ran)
}
