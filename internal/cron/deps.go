package cron

import "context"

// SystemEventOptions addresses a queued system event.
type SystemEventOptions struct {
	SessionKey string
}

// SystemEventQueue is the host's event queue for the main conversation.
type SystemEventQueue interface {
	EnqueueSystemEvent(text string, opts SystemEventOptions) error
}

// HeartbeatWaker asks the host to run a heartbeat immediately.
type HeartbeatWaker interface {
	RequestHeartbeatNow()
}

// AgentJobRequest is one isolated agent invocation.
type AgentJobRequest struct {
	JobID          string
	JobName        string
	Message        string
	TimeoutSeconds int
	SessionTarget  SessionTarget
}

// AgentJobResult is what an isolated agent run produced. HeartbeatOnly is
// set when the reply carried nothing beyond the heartbeat acknowledgement.
type AgentJobResult struct {
	Status        string
	Summary       string
	HeartbeatOnly bool
}

// AgentRunner runs isolated agent jobs. Implementations enforce
// TimeoutSeconds and must return once ctx is done.
type AgentRunner interface {
	RunIsolatedAgentJob(ctx context.Context, req AgentJobRequest) (AgentJobResult, error)
}

// DeliveryMessage is the output handed to a DeliverySink.
type DeliveryMessage struct {
	JobID   string `json:"jobId"`
	JobName string `json:"jobName"`
	Status  string `json:"status"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
	RanAtMs int64  `json:"ranAtMs"`
}

// DeliverySink performs the side effect described by a DeliveryPlan.
type DeliverySink interface {
	Deliver(ctx context.Context, plan DeliveryPlan, msg DeliveryMessage) error
}

// Task is a due-job execution handed to a WorkerPool.
type Task struct {
	ID      string
	Type    string
	Run     func(ctx context.Context)
	Context context.Context
}

// TaskTypeCron is the Task.Type of timer-dispatched executions.
const TaskTypeCron = "cron"

// WorkerPool runs timer-dispatched executions off the tick goroutine. A
// Submit error means the task will never run.
type WorkerPool interface {
	Submit(task Task) error
}

// Deps are the collaborators a Service calls out to. Any of them may be nil:
// a nil SystemEvents or Heartbeat drops that side effect, a nil Agent fails
// agentTurn jobs, a nil Delivery skips delivery and a nil Pool runs due jobs
// inline on the tick goroutine.
type Deps struct {
	SystemEvents SystemEventQueue
	Heartbeat    HeartbeatWaker
	Agent        AgentRunner
	Delivery     DeliverySink
	Pool         WorkerPool
	Metrics      *Metrics
}
