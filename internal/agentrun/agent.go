// Package agentrun runs isolated agent turns for scheduled jobs. The agent
// itself is an external command: the prompt goes to its stdin and its
// stdout is the reply.
package agentrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Agent runs one prompt and returns the reply.
type Agent interface {
	Run(ctx context.Context, prompt string) (string, error)
}

type contextKey string

const sessionKey contextKey = "session_key"

// WithSession tags ctx with the session an agent turn belongs to.
func WithSession(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKey, key)
}

// SessionFromContext returns the session set by WithSession.
func SessionFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(sessionKey).(string); ok {
		return key
	}
	return ""
}

// ExecAgent runs Command through sh -c in Dir.
type ExecAgent struct {
	Command string
	Dir     string
}

// ErrNoCommand is returned by an ExecAgent without a command.
var ErrNoCommand = errors.New("agent command is not configured")

// Run executes the command with prompt on stdin. The session from ctx is
// exported as OPENCLAW_SESSION_KEY.
func (a *ExecAgent) Run(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(a.Command) == "" {
		return "", ErrNoCommand
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", a.Command)
	cmd.Dir = a.Dir
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = append(os.Environ(), "OPENCLAW_SESSION_KEY="+SessionFromContext(ctx))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("agent command failed: %w", err)
		}
		return "", fmt.Errorf("agent command failed: %w: %s", err, msg)
	}
	return stdout.String(), nil
}
