package heartbeat

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vultr740-byte/openclaw/internal/logger"
)

// InstructionsFilename is the workspace file the heartbeat prompt points at.
const InstructionsFilename = "HEARTBEAT.md"

// Loader reads HEARTBEAT.md from the workspace on every heartbeat, so edits
// take effect without a restart.
type Loader struct {
	workspace string
	logger    *logger.Logger
}

// NewLoader creates a new Loader instance
func NewLoader(workspace string, logger *logger.Logger) *Loader {
	return &Loader{
		workspace: workspace,
		logger:    logger,
	}
}

// Load returns the trimmed instructions, or "" when the file is absent.
func (l *Loader) Load() (string, error) {
	content, err := os.ReadFile(l.path())
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Debug("HEARTBEAT.md not found, skipping")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read HEARTBEAT.md: %w", err)
	}
	return strings.TrimSpace(string(content)), nil
}

func (l *Loader) path() string {
	return filepath.Join(l.workspace, InstructionsFilename)
}
