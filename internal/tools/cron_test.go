package tools

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultr740-byte/openclaw/internal/cron"
	"github.com/vultr740-byte/openclaw/internal/logger"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingQueue struct {
	mu     sync.Mutex
	events []string
}

func (q *recordingQueue) EnqueueSystemEvent(text string, _ cron.SystemEventOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, text)
	return nil
}

func newTestService(t *testing.T) (*cron.Service, *recordingQueue) {
	t.Helper()
	q := &recordingQueue{}
	svc := cron.New(cron.Options{
		StorePath: filepath.Join(t.TempDir(), "jobs.json"),
		Now:       func() time.Time { return testNow },
	}, cron.Deps{SystemEvents: q}, logger.Nop())
	return svc, q
}

func newTestCronTool(t *testing.T) (*CronTool, *cron.Service, *recordingQueue) {
	svc, q := newTestService(t)
	tool := NewCronTool(svc, logger.Nop())
	tool.now = func() time.Time { return testNow }
	return tool, svc, q
}

func allJobs(t *testing.T, svc *cron.Service) []cron.Job {
	t.Helper()
	jobs, err := svc.List(cron.ListOptions{IncludeDisabled: true})
	require.NoError(t, err)
	return jobs
}

func TestCronTool_AddEvery(t *testing.T) {
	tool, svc, _ := newTestCronTool(t)

	out, err := tool.Execute(context.Background(), `{"action":"add_every","every_seconds":60,"text":"check mail","name":"mail"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "scheduled")

	jobs := allJobs(t, svc)
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.Equal(t, "mail", job.Name)
	assert.Equal(t, cron.ScheduleEvery, job.Schedule.Kind)
	assert.Equal(t, int64(60_000), job.Schedule.EveryMs)
	assert.Equal(t, testNow.Add(time.Minute).UnixMilli(), job.Schedule.AnchorMs)
	assert.Equal(t, cron.PayloadSystemEvent, job.Payload.Kind)
	assert.Equal(t, cron.SessionMain, job.SessionTarget)
	assert.Nil(t, job.Delivery)
}

func TestCronTool_AddAtAgentTurnWithDelivery(t *testing.T) {
	tool, svc, _ := newTestCronTool(t)
	ctx := WithOrigin(context.Background(), Origin{Channel: "telegram", To: "42", ThreadID: "7"})

	_, err := tool.Execute(ctx, `{"action":"add_at","at":"2026-03-01T13:00:00Z","message":"summarise the day","deliver":true,"wake_now":true}`)
	require.NoError(t, err)

	jobs := allJobs(t, svc)
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.Equal(t, cron.ScheduleAt, job.Schedule.Kind)
	assert.Equal(t, cron.PayloadAgentTurn, job.Payload.Kind)
	assert.Equal(t, cron.SessionIsolated, job.SessionTarget)
	assert.Equal(t, cron.WakeNow, job.WakeMode)
	require.NotNil(t, job.Delivery)
	assert.Equal(t, cron.DeliveryAnnounce, job.Delivery.Mode)
	assert.Equal(t, "telegram", job.Delivery.Channel)
	assert.Equal(t, "42", job.Delivery.To)
	assert.Equal(t, "7", job.Delivery.ThreadID)
}

func TestCronTool_AgentTurnWithoutDeliverIsSilent(t *testing.T) {
	tool, svc, _ := newTestCronTool(t)

	_, err := tool.Execute(context.Background(), `{"action":"add_every","every_seconds":300,"message":"tidy notes"}`)
	require.NoError(t, err)

	jobs := allJobs(t, svc)
	require.Len(t, jobs, 1)
	require.NotNil(t, jobs[0].Delivery)
	assert.Equal(t, cron.DeliveryNone, jobs[0].Delivery.Mode)
}

func TestCronTool_ListRemoveRun(t *testing.T) {
	tool, svc, q := newTestCronTool(t)
	ctx := context.Background()

	out, err := tool.Execute(ctx, `{"action":"list"}`)
	require.NoError(t, err)
	assert.Equal(t, "No scheduled jobs.", out)

	_, err = tool.Execute(ctx, `{"action":"add_every","every_seconds":60,"text":"hello"}`)
	require.NoError(t, err)
	id := allJobs(t, svc)[0].ID

	out, err = tool.Execute(ctx, `{"action":"list"}`)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "every 1m0s")

	out, err = tool.Execute(ctx, `{"action":"run","job_id":"`+id+`"}`)
	require.NoError(t, err)
	var res cron.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Ran)
	assert.Equal(t, cron.ReasonNotDue, res.Reason)

	out, err = tool.Execute(ctx, `{"action":"run","job_id":"`+id+`","force":true}`)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Ran)
	assert.Equal(t, []string{"hello"}, q.events)

	out, err = tool.Execute(ctx, `{"action":"remove","job_id":"`+id+`"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "removed")
	assert.Empty(t, allJobs(t, svc))
}

func TestCronTool_Errors(t *testing.T) {
	tool, _, _ := newTestCronTool(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args string
		code string
	}{
		{"bad json", `{`, CodeInvalidArguments},
		{"unknown field", `{"action":"list","bogus":1}`, CodeInvalidArguments},
		{"missing action", `{}`, CodeInvalidArguments},
		{"unknown action", `{"action":"explode"}`, CodeInvalidArguments},
		{"zero interval", `{"action":"add_every","text":"x"}`, CodeInvalidArguments},
		{"bad at", `{"action":"add_at","at":"tomorrow","text":"x"}`, CodeInvalidArguments},
		{"no payload", `{"action":"add_every","every_seconds":5}`, CodeInvalidArguments},
		{"both payloads", `{"action":"add_every","every_seconds":5,"text":"a","message":"b"}`, CodeInvalidArguments},
		{"negative timeout", `{"action":"add_every","every_seconds":5,"message":"a","timeout_seconds":-1}`, CodeInvalidArguments},
		{"remove without id", `{"action":"remove"}`, CodeInvalidArguments},
		{"remove unknown", `{"action":"remove","job_id":"nope"}`, CodeJobNotFound},
		{"run unknown", `{"action":"run","job_id":"nope"}`, CodeJobNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tool.Execute(ctx, tt.args)
			var toolErr *ToolError
			require.True(t, errors.As(err, &toolErr), "expected ToolError, got %v", err)
			assert.Equal(t, tt.code, toolErr.Code)
		})
	}
}

func TestCronTool_NotFoundUnwraps(t *testing.T) {
	tool, _, _ := newTestCronTool(t)

	_, err := tool.Execute(context.Background(), `{"action":"remove","job_id":"nope"}`)
	assert.ErrorIs(t, err, cron.ErrNotFound)
}
