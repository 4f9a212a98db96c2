package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vultr740-byte/openclaw/internal/cron"
	"github.com/vultr740-byte/openclaw/internal/logger"
)

// CronService is the scheduler surface the tools drive.
type CronService interface {
	Add(ctx context.Context, in cron.JobCreate) (cron.Job, error)
	List(opts cron.ListOptions) ([]cron.Job, error)
	Run(ctx context.Context, id string, mode cron.RunMode) (cron.RunResult, error)
	Remove(ctx context.Context, id string) (cron.RemoveResult, error)
}

// CronTool lets the agent manage scheduled jobs.
type CronTool struct {
	service CronService
	logger  *logger.Logger
	now     func() time.Time
}

// CronArgs represents the arguments for the cron tool.
type CronArgs struct {
	Action          string `json:"action"`
	Name            string `json:"name,omitempty"`
	EverySeconds    int64  `json:"every_seconds,omitempty"`
	At              string `json:"at,omitempty"`
	Message         string `json:"message,omitempty"`
	Text            string `json:"text,omitempty"`
	TimeoutSeconds  int    `json:"timeout_seconds,omitempty"`
	WakeNow         bool   `json:"wake_now,omitempty"`
	Deliver         bool   `json:"deliver,omitempty"`
	JobID           string `json:"job_id,omitempty"`
	Force           bool   `json:"force,omitempty"`
	IncludeDisabled bool   `json:"include_disabled,omitempty"`
}

// NewCronTool creates a new CronTool instance.
func NewCronTool(service CronService, log *logger.Logger) *CronTool {
	return &CronTool{
		service: service,
		logger:  log,
		now:     time.Now,
	}
}

// Name returns the tool name.
func (t *CronTool) Name() string {
	return "cron"
}

// Description returns a description of what the tool does.
func (t *CronTool) Description() string {
	return "Manages scheduled jobs. A job either queues a system event for the main session (text) or runs an isolated agent turn (message). Supports periodic jobs, one-time jobs, listing, removing and running a job immediately."
}

// Parameters returns the JSON Schema for the tool's parameters.
func (t *CronTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"description": "Action to perform.",
				"enum":        []string{"add_every", "add_at", "list", "remove", "run"},
			},
			"name": map[string]any{
				"type":        "string",
				"description": "Optional job label.",
			},
			"every_seconds": map[string]any{
				"type":        "integer",
				"description": "Interval in seconds. Required for 'add_every'.",
				"minimum":     1,
			},
			"at": map[string]any{
				"type":        "string",
				"description": "RFC3339 time for a one-time job (e.g. '2026-02-05T18:00:00Z'). Required for 'add_at'.",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Prompt for an isolated agent turn. Set either message or text.",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "System event text queued for the main session. Set either message or text.",
			},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"description": "Agent turn timeout. Zero uses the default.",
			},
			"wake_now": map[string]any{
				"type":        "boolean",
				"description": "Request a heartbeat as soon as the job fires.",
			},
			"deliver": map[string]any{
				"type":        "boolean",
				"description": "Announce the agent reply back to the current conversation.",
			},
			"job_id": map[string]any{
				"type":        "string",
				"description": "Job id. Required for 'remove' and 'run'.",
			},
			"force": map[string]any{
				"type":        "boolean",
				"description": "For 'run': run even if the job is not due.",
			},
			"include_disabled": map[string]any{
				"type":        "boolean",
				"description": "For 'list': include disabled jobs.",
			},
		},
		"required": []string{"action"},
	}
}

// Execute runs the requested action.
func (t *CronTool) Execute(ctx context.Context, args string) (string, error) {
	var a CronArgs
	if err := parseJSON(args, &a); err != nil {
		return "", NewValidationError(fmt.Sprintf("failed to parse arguments: %v", err), "Pass a JSON object matching the tool parameters.")
	}

	switch a.Action {
	case "add_every":
		if a.EverySeconds <= 0 {
			return "", NewValidationError("every_seconds must be positive", "")
		}
		schedule := cron.Every(time.Duration(a.EverySeconds)*time.Second, t.now().Add(time.Duration(a.EverySeconds)*time.Second))
		return t.add(ctx, a, schedule)
	case "add_at":
		at, err := time.Parse(time.RFC3339, strings.TrimSpace(a.At))
		if err != nil {
			return "", NewValidationError("at must be an RFC3339 timestamp", "Use a value like 2026-02-05T18:00:00Z.")
		}
		return t.add(ctx, a, cron.At(at))
	case "list":
		return t.list(a)
	case "remove":
		return t.remove(ctx, a)
	case "run":
		return t.run(ctx, a)
	case "":
		return "", NewValidationError("action is required", "")
	default:
		return "", NewValidationError(fmt.Sprintf("unknown action: %s", a.Action), "Use add_every, add_at, list, remove or run.")
	}
}

func (t *CronTool) add(ctx context.Context, a CronArgs, schedule cron.Schedule) (string, error) {
	in := cron.JobCreate{
		Name:     a.Name,
		Schedule: schedule,
	}

	switch {
	case a.Message != "" && a.Text != "":
		return "", NewValidationError("set either message or text, not both", "")
	case a.Message != "":
		in.Payload = cron.AgentTurn(a.Message, a.TimeoutSeconds)
	case a.Text != "":
		in.Payload = cron.SystemEvent(a.Text)
	default:
		return "", NewValidationError("message or text is required", "Use message for an agent turn, text for a system event.")
	}

	if a.WakeNow {
		in.WakeMode = cron.WakeNow
	}
	if a.Deliver {
		in.Delivery = announceToOrigin(ctx)
	} else if in.Payload.Kind == cron.PayloadAgentTurn {
		in.Delivery = &cron.Delivery{Mode: cron.DeliveryNone}
	}

	job, err := t.service.Add(ctx, in)
	if err != nil {
		return "", fromServiceError(err)
	}

	t.logger.InfoCtx(ctx, "cron job added via tool",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "schedule", Value: string(job.Schedule.Kind)})

	return fmt.Sprintf("Job %s (%s) scheduled; next run %s.", job.ID, job.Name, formatMs(job.State.NextRunAtMs)), nil
}

func (t *CronTool) list(a CronArgs) (string, error) {
	jobs, err := t.service.List(cron.ListOptions{IncludeDisabled: a.IncludeDisabled})
	if err != nil {
		return "", fromServiceError(err)
	}
	if len(jobs) == 0 {
		return "No scheduled jobs.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Scheduled jobs (%d):\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(&sb, "- %s %q %s", job.ID, job.Name, describeSchedule(job.Schedule))
		if !job.Enabled {
			sb.WriteString(" [disabled]")
		}
		if job.IsFollowup() {
			sb.WriteString(" [followup]")
		}
		fmt.Fprintf(&sb, " next=%s", formatMs(job.State.NextRunAtMs))
		if job.State.LastStatus != "" {
			fmt.Fprintf(&sb, " last=%s", job.State.LastStatus)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (t *CronTool) remove(ctx context.Context, a CronArgs) (string, error) {
	if a.JobID == "" {
		return "", NewValidationError("job_id is required", "")
	}
	res, err := t.service.Remove(ctx, a.JobID)
	if err != nil {
		return "", fromServiceError(err)
	}
	if !res.Removed {
		return fmt.Sprintf("Job %s was already gone.", a.JobID), nil
	}
	return fmt.Sprintf("Job %s removed.", a.JobID), nil
}

func (t *CronTool) run(ctx context.Context, a CronArgs) (string, error) {
	if a.JobID == "" {
		return "", NewValidationError("job_id is required", "")
	}
	mode := cron.RunModeDueOnly
	if a.Force {
		mode = cron.RunModeForce
	}
	res, err := t.service.Run(ctx, a.JobID, mode)
	if err != nil {
		return "", fromServiceError(err)
	}
	out, err := toJSON(res)
	if err != nil {
		return "", fmt.Errorf("failed to encode run result: %w", err)
	}
	return out, nil
}

// announceToOrigin targets the conversation the tool was called from, or the
// last active route when the call has no origin.
func announceToOrigin(ctx context.Context) *cron.Delivery {
	d := &cron.Delivery{Mode: cron.DeliveryAnnounce, Channel: cron.LastChannel}
	if o, ok := OriginFromContext(ctx); ok {
		d.Channel = o.Channel
		d.To = o.To
		d.AccountID = o.AccountID
		if o.ThreadID != "" {
			d.ThreadID = o.ThreadID
		}
	}
	return d
}

func describeSchedule(s cron.Schedule) string {
	switch s.Kind {
	case cron.ScheduleEvery:
		return fmt.Sprintf("every %s", time.Duration(s.EveryMs)*time.Millisecond)
	case cron.ScheduleAt:
		return fmt.Sprintf("at %s", s.At)
	default:
		return string(s.Kind)
	}
}

func formatMs(ms *int64) string {
	if ms == nil {
		return "never"
	}
	return time.UnixMilli(*ms).UTC().Format(time.RFC3339)
}
