package agentrun

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vultr740-byte/openclaw/internal/cron"
	"github.com/vultr740-byte/openclaw/internal/heartbeat"
	"github.com/vultr740-byte/openclaw/internal/logger"
)

// DefaultTimeout bounds a run whose job does not set timeoutSeconds.
const DefaultTimeout = 10 * time.Minute

// ErrTimeout is returned when an agent run exceeds its timeout.
var ErrTimeout = errors.New("agent run timed out")

// Runner adapts an Agent to the scheduler's isolated job contract.
type Runner struct {
	agent          Agent
	defaultTimeout time.Duration
	logger         *logger.Logger
}

// NewRunner creates a Runner. A non-positive defaultTimeout means DefaultTimeout.
func NewRunner(agent Agent, defaultTimeout time.Duration, log *logger.Logger) *Runner {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	return &Runner{
		agent:          agent,
		defaultTimeout: defaultTimeout,
		logger:         log,
	}
}

// SessionKeyFor names the session an isolated job runs in.
func SessionKeyFor(jobID string) string {
	return "cron:" + jobID
}

// RunIsolatedAgentJob runs req.Message in the job's own session. It returns
// once the timeout passes even if the agent keeps running.
func (r *Runner) RunIsolatedAgentJob(ctx context.Context, req cron.AgentJobRequest) (cron.AgentJobResult, error) {
	timeout := r.defaultTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	runCtx, cancel := context.WithTimeout(WithSession(ctx, SessionKeyFor(req.JobID)), timeout)
	defer cancel()

	r.logger.DebugCtx(ctx, "running isolated agent job",
		logger.Field{Key: "job_id", Value: req.JobID},
		logger.Field{Key: "timeout", Value: timeout.String()})

	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- reply{err: fmt.Errorf("agent panic: %v", p)}
			}
		}()
		text, err := r.agent.Run(runCtx, req.Message)
		done <- reply{text: text, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) && runCtx.Err() == context.DeadlineExceeded {
				return cron.AgentJobResult{Status: cron.StatusError}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
			}
			return cron.AgentJobResult{Status: cron.StatusError}, res.err
		}
		summary := strings.TrimSpace(res.text)
		return cron.AgentJobResult{
			Status:        cron.StatusOK,
			Summary:       summary,
			HeartbeatOnly: heartbeat.IsOKResponse(summary),
		}, nil
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return cron.AgentJobResult{Status: cron.StatusError}, ctx.Err()
		}
		r.logger.WarnCtx(ctx, "agent run timed out",
			logger.Field{Key: "job_id", Value: req.JobID},
			logger.Field{Key: "timeout", Value: timeout.String()})
		return cron.AgentJobResult{Status: cron.StatusError}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}
