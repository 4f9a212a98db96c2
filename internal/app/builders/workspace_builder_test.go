package builders

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultr740-byte/openclaw/internal/config"
	"github.com/vultr740-byte/openclaw/internal/heartbeat"
	"github.com/vultr740-byte/openclaw/internal/logger"
)

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "debug", Format: "text", Output: "discard"})
	require.NoError(t, err)
	return log
}

func createTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Workspace.Path = filepath.Join(t.TempDir(), "ws")
	return &cfg
}

type staticAgent string

func (a staticAgent) Run(context.Context, string) (string, error) { return string(a), nil }

func TestWorkspaceBuilder_Build(t *testing.T) {
	cfg := createTestConfig(t)
	b := NewWorkspaceBuilder(cfg, createTestLogger(t))

	ws, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, cfg.Workspace.Path, ws)
	assert.DirExists(t, ws)
	assert.DirExists(t, filepath.Join(ws, config.CronSubdirectory))
}

func TestWorkspaceBuilder_InitializeHeartbeat(t *testing.T) {
	cfg := createTestConfig(t)
	b := NewWorkspaceBuilder(cfg, createTestLogger(t))
	ws, err := b.Build()
	require.NoError(t, err)

	require.NoError(t, b.InitializeHeartbeat(ws))
	path := filepath.Join(ws, heartbeat.InstructionsFilename)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), heartbeat.OKToken)

	// An existing file is left alone.
	require.NoError(t, os.WriteFile(path, []byte("mine"), 0o644))
	require.NoError(t, b.InitializeHeartbeat(ws))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mine", string(data))
}

func TestWorkspaceBuilder_BuildHeartbeatChecker(t *testing.T) {
	cfg := createTestConfig(t)
	b := NewWorkspaceBuilder(cfg, createTestLogger(t))

	assert.Nil(t, b.BuildHeartbeatChecker(cfg.Workspace.Path, staticAgent("HEARTBEAT_OK"), nil))

	cfg.Heartbeat.Enabled = true
	checker := b.BuildHeartbeatChecker(cfg.Workspace.Path, staticAgent("HEARTBEAT_OK"), nil)
	require.NotNil(t, checker)
	require.NoError(t, checker.Start())
	require.NoError(t, checker.Stop())
}

func TestWorkspaceBuilder_BuildWorkerPool(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Workers.PoolSize = 2
	pool := NewWorkspaceBuilder(cfg, createTestLogger(t)).BuildWorkerPool(nil)
	defer pool.Stop()

	assert.Equal(t, 2, pool.WorkerCount())
}
