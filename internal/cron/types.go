// Package cron implements the durable job scheduler: a versioned job store,
// schedule evaluation, the single execution path for due jobs (including the
// ephemeral followup lifecycle), the timer loop and the service facade used
// by the CLI, the agent tools and the application.
package cron

import (
	"fmt"
	"time"
)

// StoreVersion is the only store file version this package reads and writes.
const StoreVersion = 1

// ScheduleKind discriminates Schedule.
type ScheduleKind string

const (
	// ScheduleEvery fires periodically and is re-anchored after each fire.
	ScheduleEvery ScheduleKind = "every"
	// ScheduleAt fires once at an absolute time.
	ScheduleAt ScheduleKind = "at"
)

// Schedule is a tagged variant: Every{EveryMs, AnchorMs} or At{At}.
type Schedule struct {
	Kind     ScheduleKind `json:"kind"`
	EveryMs  int64        `json:"everyMs,omitempty"`
	AnchorMs int64        `json:"anchorMs,omitempty"`
	At       string       `json:"at,omitempty"` // RFC3339
}

// Every builds a periodic schedule first due at anchor.
func Every(every time.Duration, anchor time.Time) Schedule {
	return Schedule{Kind: ScheduleEvery, EveryMs: every.Milliseconds(), AnchorMs: anchor.UnixMilli()}
}

// At builds a one-shot schedule.
func At(at time.Time) Schedule {
	return Schedule{Kind: ScheduleAt, At: at.UTC().Format(time.RFC3339Nano)}
}

// AtMs parses the one-shot timestamp.
func (s Schedule) AtMs() (int64, error) {
	t, err := time.Parse(time.RFC3339, s.At)
	if err != nil {
		return 0, fmt.Errorf("invalid at timestamp %q: %w", s.At, err)
	}
	return t.UnixMilli(), nil
}

// SessionTarget selects the conversational context a payload runs against.
type SessionTarget string

const (
	SessionMain     SessionTarget = "main"
	SessionIsolated SessionTarget = "isolated"
)

// WakeMode controls whether firing requests an immediate host heartbeat.
type WakeMode string

const (
	WakeNow           WakeMode = "now"
	WakeNextHeartbeat WakeMode = "next-heartbeat"
)

// PayloadKind discriminates Payload.
type PayloadKind string

const (
	// PayloadSystemEvent enqueues Text into the host event queue.
	PayloadSystemEvent PayloadKind = "systemEvent"
	// PayloadAgentTurn runs an isolated agent invocation with Message.
	PayloadAgentTurn PayloadKind = "agentTurn"
)

// Payload is a tagged variant: SystemEvent{Text} or AgentTurn{Message, TimeoutSeconds}.
// Deliver, Channel and To are the legacy delivery fields, still honoured when
// the job has no Delivery block.
type Payload struct {
	Kind           PayloadKind `json:"kind"`
	Text           string      `json:"text,omitempty"`
	Message        string      `json:"message,omitempty"`
	TimeoutSeconds int         `json:"timeoutSeconds,omitempty"`

	Deliver *bool  `json:"deliver,omitempty"`
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
}

// SystemEvent builds a system-event payload.
func SystemEvent(text string) Payload {
	return Payload{Kind: PayloadSystemEvent, Text: text}
}

// AgentTurn builds an agent-turn payload.
func AgentTurn(message string, timeoutSeconds int) Payload {
	return Payload{Kind: PayloadAgentTurn, Message: message, TimeoutSeconds: timeoutSeconds}
}

// DeliveryMode is how a job's output is announced externally.
type DeliveryMode string

const (
	DeliveryAnnounce DeliveryMode = "announce"
	DeliveryWebhook  DeliveryMode = "webhook"
	DeliveryNone     DeliveryMode = "none"
)

// Delivery is the new-style delivery block. Mode is stored as written and
// normalised by ResolveDeliveryPlan. ThreadID may hold a number or a string.
type Delivery struct {
	Mode      DeliveryMode `json:"mode,omitempty"`
	Channel   string       `json:"channel,omitempty"`
	To        string       `json:"to,omitempty"`
	AccountID string       `json:"accountId,omitempty"`
	ThreadID  any          `json:"threadId,omitempty"`
}

// Followup marks a job as an ephemeral poller.
type Followup struct {
	ExpiresAtMs *int64 `json:"expiresAtMs,omitempty"`
	StopOnReply bool   `json:"stopOnReply"`
}

// Expired reports whether the followup deadline has passed at nowMs.
func (f *Followup) Expired(nowMs int64) bool {
	return f != nil && f.ExpiresAtMs != nil && nowMs >= *f.ExpiresAtMs
}

// Run statuses recorded in JobState.LastStatus.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// JobState is runtime bookkeeping owned by the executor and the timer.
type JobState struct {
	NextRunAtMs       *int64 `json:"nextRunAtMs,omitempty"`
	RunningAtMs       *int64 `json:"runningAtMs,omitempty"`
	LastRunAtMs       *int64 `json:"lastRunAtMs,omitempty"`
	LastStatus        string `json:"lastStatus,omitempty"`
	LastError         string `json:"lastError,omitempty"`
	LastDurationMs    *int64 `json:"lastDurationMs,omitempty"`
	LastDelivered     bool   `json:"lastDelivered,omitempty"`
	LastDeliveryError string `json:"lastDeliveryError,omitempty"`
	RunCount          int    `json:"runCount,omitempty"`
}

// Job is the persisted unit of scheduled work.
type Job struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Enabled       bool          `json:"enabled"`
	CreatedAtMs   int64         `json:"createdAtMs"`
	UpdatedAtMs   int64         `json:"updatedAtMs"`
	Schedule      Schedule      `json:"schedule"`
	SessionTarget SessionTarget `json:"sessionTarget"`
	WakeMode      WakeMode      `json:"wakeMode"`
	Payload       Payload       `json:"payload"`
	Delivery      *Delivery     `json:"delivery,omitempty"`
	Followup      *Followup     `json:"followup,omitempty"`
	State         JobState      `json:"state"`
}

// IsFollowup reports whether the job is an ephemeral followup poller.
func (j *Job) IsFollowup() bool {
	return j.Followup != nil
}

// Clone returns a deep copy safe to hand out of the store.
func (j Job) Clone() Job {
	out := j
	if j.Payload.Deliver != nil {
		v := *j.Payload.Deliver
		out.Payload.Deliver = &v
	}
	if j.Delivery != nil {
		d := *j.Delivery
		out.Delivery = &d
	}
	if j.Followup != nil {
		f := *j.Followup
		if j.Followup.ExpiresAtMs != nil {
			v := *j.Followup.ExpiresAtMs
			f.ExpiresAtMs = &v
		}
		out.Followup = &f
	}
	out.State = j.State.clone()
	return out
}

func (s JobState) clone() JobState {
	out := s
	out.NextRunAtMs = cloneInt64(s.NextRunAtMs)
	out.RunningAtMs = cloneInt64(s.RunningAtMs)
	out.LastRunAtMs = cloneInt64(s.LastRunAtMs)
	out.LastDurationMs = cloneInt64(s.LastDurationMs)
	return out
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func int64Ptr(v int64) *int64 {
	return &v
}

// StoreFile is the sole durable representation of the job collection.
type StoreFile struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// JobCreate is the input to Service.Add. Zero values take defaults:
// Enabled true, SessionTarget main, WakeMode next-heartbeat.
type JobCreate struct {
	Name          string        `json:"name,omitempty"`
	Enabled       *bool         `json:"enabled,omitempty"`
	Schedule      Schedule      `json:"schedule"`
	SessionTarget SessionTarget `json:"sessionTarget,omitempty"`
	WakeMode      WakeMode      `json:"wakeMode,omitempty"`
	Payload       Payload       `json:"payload"`
	Delivery      *Delivery     `json:"delivery,omitempty"`
	Followup      *Followup     `json:"followup,omitempty"`
}

// RunMode selects how Service.Run treats the due time.
type RunMode string

const (
	RunModeForce   RunMode = "force"
	RunModeDueOnly RunMode = "due-only"
)

// Reasons reported by RunResult when nothing ran.
const (
	ReasonNotDue         = "not-due"
	ReasonAlreadyRunning = "already-running"
)

// RunResult is the outcome of one execution attempt.
type RunResult struct {
	OK            bool   `json:"ok"`
	Ran           bool   `json:"ran"`
	Reason        string `json:"reason,omitempty"`
	Status        string `json:"status,omitempty"`
	Error         string `json:"error,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Removed       bool   `json:"removed,omitempty"`
	Delivered     bool   `json:"delivered,omitempty"`
	DeliveryError string `json:"deliveryError,omitempty"`
}

func notDue() RunResult {
	return RunResult{OK: true, Ran: false, Reason: ReasonNotDue}
}

// RemoveResult is the outcome of Service.Remove.
type RemoveResult struct {
	Removed bool `json:"removed"`
}

// ListOptions filters Service.List.
type ListOptions struct {
	IncludeDisabled bool
}
