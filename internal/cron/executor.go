package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vultr740-byte/openclaw/internal/logger"
)

// ExecutionMode is decided once per execution and gates every side effect
// that touches the host's main conversation.
type ExecutionMode int

const (
	// ModeNormal dispatches, wakes and delivers as configured.
	ModeNormal ExecutionMode = iota
	// ModeFollowupSilent never enqueues system events and never wakes the
	// host; only the isolated agent run and the followup lifecycle happen.
	ModeFollowupSilent
)

func (m ExecutionMode) String() string {
	switch m {
	case ModeFollowupSilent:
		return "followup-silent"
	default:
		return "normal"
	}
}

func executionModeFor(job *Job) ExecutionMode {
	if job.IsFollowup() {
		return ModeFollowupSilent
	}
	return ModeNormal
}

// Followup removal reasons.
const (
	removalExpired = "expired"
	removalReplied = "replied"
)

// outcome is what dispatch produced for one execution.
type outcome struct {
	agentRan      bool
	status        string
	summary       string
	heartbeatOnly bool
	err           error
}

func (o outcome) failed() bool {
	return o.err != nil
}

// execute is the single execution path shared by the timer and Run. The
// caller has already marked job.ID in flight and clears it afterwards.
// Only persistence failures are returned as errors; payload failures are
// reported in the result and recorded in the job state.
func (s *Service) execute(ctx context.Context, job Job, nowMs int64) (RunResult, error) {
	log := s.logger.With(logger.Field{Key: "job_id", Value: job.ID})

	if job.Followup.Expired(nowMs) {
		removed, err := s.removeJob(job.ID, removalExpired)
		if err != nil {
			return RunResult{}, err
		}
		log.Info("followup expired, job removed without running")
		res := notDue()
		res.Removed = removed
		return res, nil
	}

	mode := executionModeFor(&job)
	started := s.now()
	out := s.dispatch(ctx, &job, mode)

	if mode == ModeNormal && job.WakeMode == WakeNow && s.deps.Heartbeat != nil {
		s.deps.Heartbeat.RequestHeartbeatNow()
	}

	duration := s.now().Sub(started)
	s.deps.Metrics.recordRun(job.Payload.Kind, out.status, duration)

	if out.failed() {
		log.Error("cron job failed", out.err,
			logger.Field{Key: "payload", Value: job.Payload.Kind},
			logger.Field{Key: "mode", Value: mode.String()})
	} else {
		log.Info("cron job ran",
			logger.Field{Key: "payload", Value: job.Payload.Kind},
			logger.Field{Key: "mode", Value: mode.String()},
			logger.Field{Key: "duration_ms", Value: duration.Milliseconds()})
	}

	stop := mode == ModeFollowupSilent && out.agentRan && !out.failed() &&
		!out.heartbeatOnly && job.Followup.StopOnReply

	updated, removed, err := s.commitRun(job.ID, nowMs, duration, out, stop)
	if err != nil {
		return RunResult{}, err
	}
	if removed {
		log.Info("followup got a reply, job removed")
	}

	res := RunResult{
		OK:      true,
		Ran:     true,
		Status:  out.status,
		Summary: out.summary,
		Removed: removed,
	}
	if out.err != nil {
		res.Error = out.err.Error()
	}

	if updated == nil {
		updated = &job
	}
	s.deliver(ctx, updated, nowMs, out, &res)
	return res, nil
}

// dispatch runs the payload. It never panics; a panicking collaborator is
// reported as a failed run.
func (s *Service) dispatch(ctx context.Context, job *Job, mode ExecutionMode) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{
				agentRan: job.Payload.Kind == PayloadAgentTurn,
				status:   StatusError,
				err:      &ExecutionError{JobID: job.ID, Err: fmt.Errorf("panic: %v", r)},
			}
		}
	}()

	switch job.Payload.Kind {
	case PayloadSystemEvent:
		if mode == ModeFollowupSilent {
			return outcome{status: StatusSkipped}
		}
		if s.deps.SystemEvents == nil {
			return outcome{status: StatusSkipped}
		}
		err := s.deps.SystemEvents.EnqueueSystemEvent(job.Payload.Text, SystemEventOptions{
			SessionKey: s.opts.MainSessionKey,
		})
		if err != nil {
			return outcome{status: StatusError, err: &ExecutionError{JobID: job.ID, Err: err}}
		}
		return outcome{status: StatusOK}

	case PayloadAgentTurn:
		if s.deps.Agent == nil {
			return outcome{status: StatusError, err: &ExecutionError{JobID: job.ID, Err: errors.New("no agent runner configured")}}
		}
		result, err := s.deps.Agent.RunIsolatedAgentJob(ctx, AgentJobRequest{
			JobID:          job.ID,
			JobName:        job.Name,
			Message:        job.Payload.Message,
			TimeoutSeconds: job.Payload.TimeoutSeconds,
			SessionTarget:  job.SessionTarget,
		})
		if err != nil {
			return outcome{agentRan: true, status: StatusError, err: &ExecutionError{JobID: job.ID, Err: err}}
		}
		out := outcome{
			agentRan:      true,
			status:        StatusOK,
			summary:       strings.TrimSpace(result.Summary),
			heartbeatOnly: result.HeartbeatOnly,
		}
		if result.Status == StatusError {
			msg := out.summary
			if msg == "" {
				msg = "agent reported an error"
			}
			out.status = StatusError
			out.err = &ExecutionError{JobID: job.ID, Err: errors.New(msg)}
		}
		return out

	default:
		return outcome{status: StatusError, err: &ExecutionError{JobID: job.ID, Err: fmt.Errorf("unknown payload kind %q", job.Payload.Kind)}}
	}
}

// commitRun records the run in the job state, advances the schedule or
// removes a finished followup, and persists. It returns the job as stored
// afterwards (nil when it is gone) and whether this call removed it.
func (s *Service) commitRun(id string, firedAtMs int64, d time.Duration, out outcome, stop bool) (*Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(); err != nil {
		return nil, false, err
	}
	jobs := s.store.Snapshot()
	idx := indexOf(jobs, id)
	if idx < 0 {
		// Removed by another caller while running.
		return nil, false, nil
	}

	if stop {
		jobs = append(jobs[:idx], jobs[idx+1:]...)
		if err := s.store.Commit(jobs); err != nil {
			return nil, false, err
		}
		s.deps.Metrics.followupRemoved(removalReplied)
		s.deps.Metrics.setJobs(len(jobs))
		return nil, true, nil
	}

	job := &jobs[idx]
	job.State.LastRunAtMs = int64Ptr(firedAtMs)
	job.State.LastDurationMs = int64Ptr(d.Milliseconds())
	job.State.LastStatus = out.status
	job.State.LastError = ""
	if out.err != nil {
		job.State.LastError = out.err.Error()
	}
	job.State.RunCount++
	job.UpdatedAtMs = s.now().UnixMilli()
	advanceSchedule(job, firedAtMs, out.failed())

	if err := s.store.Commit(jobs); err != nil {
		return nil, false, err
	}
	stored := job.Clone()
	return &stored, false, nil
}

// deliver hands the run output to the delivery sink when the plan asks for
// it. One attempt is made; a failure is logged and reported in res.
func (s *Service) deliver(ctx context.Context, job *Job, ranAtMs int64, out outcome, res *RunResult) {
	if !out.agentRan || out.heartbeatOnly || s.deps.Delivery == nil {
		return
	}
	plan := ResolveDeliveryPlan(job)
	if !plan.Requested {
		return
	}
	// Webhooks also report failures; announces only carry a reply.
	if plan.Mode == DeliveryAnnounce && (out.failed() || out.summary == "") {
		return
	}

	msg := DeliveryMessage{
		JobID:   job.ID,
		JobName: job.Name,
		Status:  out.status,
		Summary: out.summary,
		Error:   res.Error,
		RanAtMs: ranAtMs,
	}
	err := s.deps.Delivery.Deliver(ctx, plan, msg)
	s.deps.Metrics.recordDelivery(plan.Mode, err)
	if err != nil {
		res.DeliveryError = err.Error()
		s.logger.Warn("cron delivery failed",
			logger.Field{Key: "job_id", Value: job.ID},
			logger.Field{Key: "mode", Value: plan.Mode},
			logger.Field{Key: "channel", Value: plan.Channel},
			logger.Field{Key: "source", Value: plan.Source},
			logger.Field{Key: "error", Value: err.Error()})
	} else {
		res.Delivered = true
	}
	s.recordDelivery(job.ID, res.Delivered, res.DeliveryError)
}

// recordDelivery stores the delivery outcome. A failed write is only
// logged: the run itself is already committed.
func (s *Service) recordDelivery(id string, delivered bool, deliveryErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.syncLocked(); err != nil {
		s.logger.Error("failed to sync store before recording delivery", err,
			logger.Field{Key: "job_id", Value: id})
		return
	}
	jobs := s.store.Snapshot()
	idx := indexOf(jobs, id)
	if idx < 0 {
		return
	}
	jobs[idx].State.LastDelivered = delivered
	jobs[idx].State.LastDeliveryError = deliveryErr
	if err := s.store.Commit(jobs); err != nil {
		s.logger.Error("failed to record delivery outcome", err,
			logger.Field{Key: "job_id", Value: id})
	}
}
