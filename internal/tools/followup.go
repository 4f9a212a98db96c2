package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vultr740-byte/openclaw/internal/cron"
	"github.com/vultr740-byte/openclaw/internal/logger"
)

const (
	// FollowupInterval is how often a followup polls.
	FollowupInterval = 30 * time.Second
	// MaxFollowupDuration caps how long a followup may keep polling.
	MaxFollowupDuration = 10 * time.Minute
)

// FollowupTool schedules ephemeral pollers: an isolated agent turn every
// FollowupInterval that stops on the first substantive reply or when it
// expires.
type FollowupTool struct {
	service CronService
	logger  *logger.Logger
	now     func() time.Time
}

// FollowupArgs represents the arguments for the followup tool.
type FollowupArgs struct {
	Action          string `json:"action"`
	Message         string `json:"message,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	JobID           string `json:"job_id,omitempty"`
}

// NewFollowupTool creates a new FollowupTool instance.
func NewFollowupTool(service CronService, log *logger.Logger) *FollowupTool {
	return &FollowupTool{
		service: service,
		logger:  log,
		now:     time.Now,
	}
}

// Name returns the tool name.
func (t *FollowupTool) Name() string {
	return "followup"
}

// Description returns a description of what the tool does.
func (t *FollowupTool) Description() string {
	return "Keeps checking on something for a short while. 'schedule' runs the message as an isolated agent turn every 30 seconds for up to 10 minutes and announces the first real answer to this conversation; replying HEARTBEAT_OK means keep waiting. 'cancel' stops a followup by job id."
}

// Parameters returns the JSON Schema for the tool's parameters.
func (t *FollowupTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"description": "Action to perform.",
				"enum":        []string{"schedule", "cancel"},
			},
			"message": map[string]any{
				"type":        "string",
				"description": "What to check on each poll. Required for 'schedule'.",
			},
			"duration_minutes": map[string]any{
				"type":        "integer",
				"description": "How long to keep polling. Defaults to and is capped at 10.",
				"minimum":     1,
				"maximum":     int(MaxFollowupDuration / time.Minute),
			},
			"job_id": map[string]any{
				"type":        "string",
				"description": "Followup job id. Required for 'cancel'.",
			},
		},
		"required": []string{"action"},
	}
}

// Execute runs the requested action.
func (t *FollowupTool) Execute(ctx context.Context, args string) (string, error) {
	var a FollowupArgs
	if err := parseJSON(args, &a); err != nil {
		return "", NewValidationError(fmt.Sprintf("failed to parse arguments: %v", err), "Pass a JSON object matching the tool parameters.")
	}

	switch a.Action {
	case "schedule":
		return t.schedule(ctx, a)
	case "cancel":
		return t.cancel(ctx, a)
	case "":
		return "", NewValidationError("action is required", "")
	default:
		return "", NewValidationError(fmt.Sprintf("unknown action: %s", a.Action), "Use schedule or cancel.")
	}
}

// FollowupJob builds the job a followup schedule creates, starting at now.
func FollowupJob(ctx context.Context, message string, duration time.Duration, now time.Time) cron.JobCreate {
	if duration <= 0 || duration > MaxFollowupDuration {
		duration = MaxFollowupDuration
	}
	expires := now.Add(duration).UnixMilli()

	return cron.JobCreate{
		Name:          "followup: " + firstLine(message),
		Schedule:      cron.Every(FollowupInterval, now),
		SessionTarget: cron.SessionIsolated,
		WakeMode:      cron.WakeNow,
		Payload:       cron.AgentTurn(message, 0),
		Delivery:      announceToOrigin(ctx),
		Followup: &cron.Followup{
			ExpiresAtMs: &expires,
			StopOnReply: true,
		},
	}
}

func (t *FollowupTool) schedule(ctx context.Context, a FollowupArgs) (string, error) {
	message := strings.TrimSpace(a.Message)
	if message == "" {
		return "", NewValidationError("message is required", "Describe what each poll should check.")
	}
	if a.DurationMinutes < 0 {
		return "", NewValidationError("duration_minutes must not be negative", "")
	}

	in := FollowupJob(ctx, message, time.Duration(a.DurationMinutes)*time.Minute, t.now())
	job, err := t.service.Add(ctx, in)
	if err != nil {
		return "", fromServiceError(err)
	}

	t.logger.InfoCtx(ctx, "followup scheduled",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "expires_at_ms", Value: *in.Followup.ExpiresAtMs})

	return fmt.Sprintf("Followup %s scheduled: polling every %s until %s.",
		job.ID, FollowupInterval, formatMs(in.Followup.ExpiresAtMs)), nil
}

func (t *FollowupTool) cancel(ctx context.Context, a FollowupArgs) (string, error) {
	if a.JobID == "" {
		return "", NewValidationError("job_id is required", "")
	}
	res, err := t.service.Remove(ctx, a.JobID)
	if errors.Is(err, cron.ErrNotFound) || (err == nil && !res.Removed) {
		// Followups delete themselves on expiry or on the first real reply.
		return fmt.Sprintf("Followup %s is no longer active.", a.JobID), nil
	}
	if err != nil {
		return "", fromServiceError(err)
	}

	t.logger.InfoCtx(ctx, "followup cancelled", logger.Field{Key: "job_id", Value: a.JobID})
	return fmt.Sprintf("Followup %s cancelled.", a.JobID), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > 40 {
		return string(r[:40]) + "..."
	}
	return s
}
