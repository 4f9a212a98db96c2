package tools

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vultr740-byte/openclaw/internal/cron"
	"github.com/vultr740-byte/openclaw/internal/logger"
)

// Error codes used by the scheduler tools.
const (
	CodeInvalidArguments = "invalid_arguments"
	CodeJobNotFound      = "job_not_found"
	CodeScheduler        = "scheduler_error"
)

// ToolError is a structured tool failure the agent can act on.
type ToolError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
	Err        error          `json:"-"`
}

func (e *ToolError) Error() string {
	return e.Message
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// ToLLMContext renders the error for the agent.
func (e *ToolError) ToLLMContext() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tool Error:\n - Code: %s\n - Message: %s", e.Code, e.Message)

	if e.Suggestion != "" {
		fmt.Fprintf(&sb, "\n - Suggestion: %s", e.Suggestion)
	}

	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\n - Details:")
		for _, k := range keys {
			fmt.Fprintf(&sb, "\n     - %s: %v", k, e.Details[k])
		}
	}
	return sb.String()
}

// LogFields returns fields for structured logging.
func (e *ToolError) LogFields() []logger.Field {
	fields := []logger.Field{
		{Key: "error_code", Value: e.Code},
		{Key: "error_message", Value: e.Message},
	}
	if e.Suggestion != "" {
		fields = append(fields, logger.Field{Key: "error_suggestion", Value: e.Suggestion})
	}
	return fields
}

// NewValidationError reports bad tool arguments.
func NewValidationError(message, suggestion string) *ToolError {
	return &ToolError{
		Code:       CodeInvalidArguments,
		Message:    message,
		Suggestion: suggestion,
	}
}

// fromServiceError maps scheduler errors to tool errors.
func fromServiceError(err error) *ToolError {
	var vErr *cron.ValidationError
	switch {
	case errors.As(err, &vErr):
		return &ToolError{
			Code:    CodeInvalidArguments,
			Message: vErr.Error(),
			Details: map[string]any{"field": vErr.Field},
			Err:     err,
		}
	case errors.Is(err, cron.ErrNotFound):
		return &ToolError{
			Code:       CodeJobNotFound,
			Message:    err.Error(),
			Suggestion: "Use the cron tool's list action to see existing job ids.",
			Err:        err,
		}
	default:
		return &ToolError{
			Code:    CodeScheduler,
			Message: err.Error(),
			Err:     err,
		}
	}
}
