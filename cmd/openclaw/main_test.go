package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultr740-byte/openclaw/internal/cron"
)

// writeTestConfig writes a config whose agent echoes a fixed reply.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`[workspace]
path = %q

[logging]
level = "error"

[agent]
command = "echo Build finished"
timeout_seconds = 10
%s`, filepath.Join(dir, "workspace"), extra)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func resetFlags() {
	configPath = ""
	logLevel = ""
	cronAddFlags = cronAddOptions{}
	cronListAll = false
	cronListOutput = "text"
	cronRunDueOnly = false
	followupMinutes = 10
	originFlags.Channel, originFlags.To, originFlags.AccountID, originFlags.ThreadID = "", "", "", ""
	toolsCallTimeout = 0
}

// execute runs the root command with args against cfgPath.
func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"-c", cfgPath}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func listJSON(t *testing.T, cfgPath string) []cron.Job {
	t.Helper()
	out, err := execute(t, cfgPath, "cron", "list", "--all", "-o", "json")
	require.NoError(t, err)
	var jobs []cron.Job
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	return jobs
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, writeTestConfig(t, ""), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: "+Version)
}

func TestConfigCommands(t *testing.T) {
	cfg := writeTestConfig(t, "\n[channels.telegram]\nenabled = true\ntoken = \"123456789:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA\"\n")

	out, err := execute(t, cfg, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	out, err = execute(t, cfg, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "workspace:")
	assert.NotContains(t, out, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
}

func TestConfigValidateFails(t *testing.T) {
	cfg := writeTestConfig(t, "\n[channels.telegram]\nenabled = true\n")

	_, err := execute(t, cfg, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestCronAddListRemove(t *testing.T) {
	cfg := writeTestConfig(t, "")

	out, err := execute(t, cfg, "cron", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No scheduled jobs.")

	out, err = execute(t, cfg, "cron", "add", "--every", "1h", "--text", "check the inbox", "--name", "inbox")
	require.NoError(t, err)
	assert.Contains(t, out, "Job added")
	assert.Contains(t, out, "every 1h0m0s")

	out, err = execute(t, cfg, "cron", "add", "--at", "2099-01-01T00:00:00Z", "--message", "happy new year", "--disabled")
	require.NoError(t, err)

	out, err = execute(t, cfg, "cron", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "inbox")
	assert.Contains(t, out, "Total: 1")

	jobs := listJSON(t, cfg)
	require.Len(t, jobs, 2)
	byName := map[string]cron.Job{}
	for _, j := range jobs {
		byName[j.Name] = j
	}
	inbox := byName["inbox"]
	assert.Equal(t, cron.SessionMain, inbox.SessionTarget)
	assert.Equal(t, cron.PayloadSystemEvent, inbox.Payload.Kind)

	var oneShot cron.Job
	for _, j := range jobs {
		if j.Name != "inbox" {
			oneShot = j
		}
	}
	assert.False(t, oneShot.Enabled)
	assert.Equal(t, cron.SessionIsolated, oneShot.SessionTarget)

	out, err = execute(t, cfg, "cron", "list", "-a", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "sessionTarget: isolated")

	out, err = execute(t, cfg, "cron", "remove", inbox.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "removed")

	_, err = execute(t, cfg, "cron", "remove", inbox.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, cron.ErrNotFound)

	out, err = execute(t, cfg, "cron", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Jobs:      1")
}

func TestCronAddValidation(t *testing.T) {
	cfg := writeTestConfig(t, "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no schedule", []string{"--text", "x"}, "--every or --at"},
		{"both schedules", []string{"--every", "1m", "--at", "2099-01-01T00:00:00Z", "--text", "x"}, "either --every or --at"},
		{"no payload", []string{"--every", "1m"}, "--text or --message"},
		{"both payloads", []string{"--every", "1m", "--text", "x", "--message", "y"}, "either --text or --message"},
		{"bad at", []string{"--at", "tomorrow", "--text", "x"}, "at"},
		{"announce and webhook", []string{"--every", "1m", "--message", "x", "--announce", "last", "--webhook", "https://example.com"}, "either --announce or --webhook"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, cfg, append([]string{"cron", "add"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.Empty(t, listJSON(t, cfg))
}

func TestDeliveryFromFlags(t *testing.T) {
	d, err := deliveryFromFlags("telegram:42", "7", "")
	require.NoError(t, err)
	assert.Equal(t, &cron.Delivery{Mode: cron.DeliveryAnnounce, Channel: "telegram", To: "42", ThreadID: "7"}, d)

	d, err = deliveryFromFlags("last", "", "")
	require.NoError(t, err)
	assert.Equal(t, "last", d.Channel)
	assert.Empty(t, d.To)

	d, err = deliveryFromFlags("none", "", "")
	require.NoError(t, err)
	assert.Equal(t, cron.DeliveryNone, d.Mode)

	d, err = deliveryFromFlags("", "", "https://example.com/hook")
	require.NoError(t, err)
	assert.Equal(t, cron.DeliveryWebhook, d.Mode)

	d, err = deliveryFromFlags("", "", "")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestCronRunAgentTurn(t *testing.T) {
	cfg := writeTestConfig(t, "")

	_, err := execute(t, cfg, "cron", "add", "--every", "1h", "--message", "how is the build?", "--announce", "none")
	require.NoError(t, err)
	job := listJSON(t, cfg)[0]

	out, err := execute(t, cfg, "cron", "run", job.ID, "--due-only")
	require.NoError(t, err)
	var res cron.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Ran)
	assert.Equal(t, cron.ReasonNotDue, res.Reason)

	out, err = execute(t, cfg, "cron", "run", job.ID)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Ran)
	assert.Equal(t, cron.StatusOK, res.Status)
	assert.Contains(t, res.Summary, "Build finished")

	job = listJSON(t, cfg)[0]
	assert.Equal(t, cron.StatusOK, job.State.LastStatus)
	assert.Equal(t, 1, job.State.RunCount)
}

func TestCronRunWebhookDelivery(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := writeTestConfig(t, "")
	_, err := execute(t, cfg, "cron", "add", "--every", "1h", "--message", "report", "--webhook", srv.URL)
	require.NoError(t, err)
	job := listJSON(t, cfg)[0]

	out, err := execute(t, cfg, "cron", "run", job.ID)
	require.NoError(t, err)
	var res cron.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Delivered, res.DeliveryError)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	assert.Equal(t, job.ID, bodies[0]["jobId"])
}

func TestCronRunUnknownJob(t *testing.T) {
	_, err := execute(t, writeTestConfig(t, ""), "cron", "run", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, cron.ErrNotFound)
}

func TestFollowupScheduleAndCancel(t *testing.T) {
	cfg := writeTestConfig(t, "")

	out, err := execute(t, cfg, "followup", "schedule", "is the deploy done?", "--minutes", "5", "--channel", "telegram", "--to", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "polling every 30s")

	jobs := listJSON(t, cfg)
	require.Len(t, jobs, 1)
	job := jobs[0]
	require.NotNil(t, job.Followup)
	require.NotNil(t, job.Delivery)
	assert.Equal(t, "telegram", job.Delivery.Channel)
	assert.Equal(t, "42", job.Delivery.To)
	assert.Equal(t, cron.WakeNow, job.WakeMode)

	out, err = execute(t, cfg, "followup", "cancel", job.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "cancelled")

	out, err = execute(t, cfg, "followup", "cancel", job.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "no longer active")
}

func TestToolsCommands(t *testing.T) {
	cfg := writeTestConfig(t, "")

	out, err := execute(t, cfg, "tools", "list")
	require.NoError(t, err)
	var defs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &defs))
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, fmt.Sprint(d["name"]))
	}
	assert.Equal(t, []string{"cron", "followup"}, names)

	out, err = execute(t, cfg, "tools", "call", "cron", `{"action":"add_every","every_seconds":60,"text":"stretch"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "stretch")

	out, err = execute(t, cfg, "tools", "call", "cron", `{"action":"list"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "every 1m0s")

	_, err = execute(t, cfg, "tools", "call", "cron", `{"action":"explode"}`)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid_arguments"), err.Error())

	_, err = execute(t, cfg, "tools", "call", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool not found")
}
