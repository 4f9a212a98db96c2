package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vultr740-byte/openclaw/internal/app"
	"github.com/vultr740-byte/openclaw/internal/app/builders"
	"github.com/vultr740-byte/openclaw/internal/cron"
)

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Manage scheduled jobs",
	Long: `Manage scheduled jobs in the workspace job store. A running daemon
picks up changes made here on its next tick.`,
}

var cronAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a scheduled job",
	Example: `  openclaw cron add --every 1h --text "check the inbox"
  openclaw cron add --at 2026-02-05T18:00:00Z --message "summarise the day" --announce telegram:12345
  openclaw cron add --every 15m --message "poll the build" --webhook https://example.com/hook`,
	Args: cobra.NoArgs,
	RunE: runCronAdd,
}

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	Args:  cobra.NoArgs,
	RunE:  runCronList,
}

var cronRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Run a job now",
	Long: `Run a job now, even if it is not due. With --due-only the job only
runs when it is due. Expired followups are removed instead of run.`,
	Args: cobra.ExactArgs(1),
	RunE: runCronRun,
}

var cronRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Remove a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE:  runCronRemove,
}

var cronStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scheduler status",
	Args:  cobra.NoArgs,
	RunE:  runCronStatus,
}

type cronAddOptions struct {
	name     string
	every    time.Duration
	at       string
	text     string
	message  string
	timeout  int
	wakeNow  bool
	session  string
	announce string
	thread   string
	webhook  string
	disabled bool
}

var cronAddFlags cronAddOptions

var (
	cronListAll    bool
	cronListOutput string
	cronRunDueOnly bool
)

func standaloneService() (*cron.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg, true)
	if err != nil {
		return nil, err
	}
	return builders.NewCronBuilder(cfg, log).BuildStandalone(), nil
}

func runCronAdd(cmd *cobra.Command, args []string) error {
	f := cronAddFlags
	in := cron.JobCreate{
		Name:          f.name,
		SessionTarget: cron.SessionTarget(f.session),
	}
	if f.disabled {
		enabled := false
		in.Enabled = &enabled
	}
	if f.wakeNow {
		in.WakeMode = cron.WakeNow
	}

	switch {
	case f.every > 0 && f.at != "":
		return errors.New("use either --every or --at")
	case f.every > 0:
		in.Schedule = cron.Every(f.every, time.Now().Add(f.every))
	case f.at != "":
		in.Schedule = cron.Schedule{Kind: cron.ScheduleAt, At: f.at}
	default:
		return errors.New("one of --every or --at is required")
	}

	switch {
	case f.text != "" && f.message != "":
		return errors.New("use either --text or --message")
	case f.text != "":
		in.Payload = cron.SystemEvent(f.text)
	case f.message != "":
		in.Payload = cron.AgentTurn(f.message, f.timeout)
	default:
		return errors.New("one of --text or --message is required")
	}

	delivery, err := deliveryFromFlags(f.announce, f.thread, f.webhook)
	if err != nil {
		return err
	}
	in.Delivery = delivery

	svc, err := standaloneService()
	if err != nil {
		return err
	}
	job, err := svc.Add(cmd.Context(), in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Job added")
	fmt.Fprintf(out, "  ID:       %s\n", job.ID)
	fmt.Fprintf(out, "  Name:     %s\n", job.Name)
	fmt.Fprintf(out, "  Schedule: %s\n", describeSchedule(job.Schedule))
	fmt.Fprintf(out, "  Next run: %s\n", formatMs(job.State.NextRunAtMs))
	return nil
}

// deliveryFromFlags parses --announce channel[:to] and --webhook url.
func deliveryFromFlags(announce, thread, webhook string) (*cron.Delivery, error) {
	switch {
	case announce != "" && webhook != "":
		return nil, errors.New("use either --announce or --webhook")
	case announce == "none":
		return &cron.Delivery{Mode: cron.DeliveryNone}, nil
	case announce != "":
		channel, to, _ := strings.Cut(announce, ":")
		d := &cron.Delivery{Mode: cron.DeliveryAnnounce, Channel: channel, To: to}
		if thread != "" {
			d.ThreadID = thread
		}
		return d, nil
	case webhook != "":
		return &cron.Delivery{Mode: cron.DeliveryWebhook, To: webhook}, nil
	default:
		return nil, nil
	}
}

func runCronList(cmd *cobra.Command, args []string) error {
	svc, err := standaloneService()
	if err != nil {
		return err
	}
	jobs, err := svc.List(cron.ListOptions{IncludeDisabled: cronListAll})
	if err != nil {
		return err
	}
	return writeJobs(cmd.OutOrStdout(), jobs, cronListOutput)
}

func writeJobs(w io.Writer, jobs []cron.Job, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if jobs == nil {
			jobs = []cron.Job{}
		}
		return enc.Encode(jobs)
	case "yaml":
		return writeYAML(w, jobs)
	case "text", "":
		if len(jobs) == 0 {
			fmt.Fprintln(w, "No scheduled jobs.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSCHEDULE\tPAYLOAD\tENABLED\tNEXT RUN\tLAST STATUS")
		for _, job := range jobs {
			name := job.Name
			if job.IsFollowup() {
				name += " (followup)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
				job.ID, name, describeSchedule(job.Schedule), job.Payload.Kind,
				job.Enabled, formatMs(job.State.NextRunAtMs), orDash(job.State.LastStatus))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "\nTotal: %d\n", len(jobs))
		return nil
	default:
		return fmt.Errorf("unknown output format %q (text, json, yaml)", format)
	}
}

// writeYAML renders v with the same field names as the JSON store.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func runCronRun(cmd *cobra.Command, args []string) error {
	mode := cron.RunModeForce
	if cronRunDueOnly {
		mode = cron.RunModeDueOnly
	}
	return runOneShot(cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Cron().Run(ctx, args[0], mode)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	})
}

func runCronRemove(cmd *cobra.Command, args []string) error {
	svc, err := standaloneService()
	if err != nil {
		return err
	}
	if _, err := svc.Remove(cmd.Context(), args[0]); err != nil {
		if errors.Is(err, cron.ErrNotFound) {
			return fmt.Errorf("%w (use 'openclaw cron list --all' to see job ids)", err)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job %s removed\n", args[0])
	return nil
}

func runCronStatus(cmd *cobra.Command, args []string) error {
	svc, err := standaloneService()
	if err != nil {
		return err
	}
	st, err := svc.Status()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Store:     %s\n", st.StorePath)
	fmt.Fprintf(out, "Jobs:      %d\n", st.Jobs)
	fmt.Fprintf(out, "Next wake: %s\n", formatMs(st.NextWakeAtMs))
	return nil
}

func describeSchedule(s cron.Schedule) string {
	switch s.Kind {
	case cron.ScheduleEvery:
		return "every " + (time.Duration(s.EveryMs) * time.Millisecond).String()
	case cron.ScheduleAt:
		return "at " + s.At
	default:
		return string(s.Kind)
	}
}

func formatMs(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return time.UnixMilli(*ms).Local().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	f := cronAddCmd.Flags()
	f.StringVar(&cronAddFlags.name, "name", "", "Job label (derived from the payload when empty)")
	f.DurationVar(&cronAddFlags.every, "every", 0, "Run periodically at this interval (e.g. 30m)")
	f.StringVar(&cronAddFlags.at, "at", "", "Run once at this RFC3339 time")
	f.StringVar(&cronAddFlags.text, "text", "", "System event text for the main session")
	f.StringVar(&cronAddFlags.message, "message", "", "Prompt for an isolated agent turn")
	f.IntVar(&cronAddFlags.timeout, "timeout", 0, "Agent turn timeout in seconds (0 uses the configured default)")
	f.BoolVar(&cronAddFlags.wakeNow, "wake-now", false, "Request a heartbeat as soon as the job fires")
	f.StringVar(&cronAddFlags.session, "session", "", "Session target: main or isolated")
	f.StringVar(&cronAddFlags.announce, "announce", "", "Announce the reply to channel[:to], 'last', or 'none'")
	f.StringVar(&cronAddFlags.thread, "thread", "", "Thread id for --announce")
	f.StringVar(&cronAddFlags.webhook, "webhook", "", "POST the run result to this URL")
	f.BoolVar(&cronAddFlags.disabled, "disabled", false, "Create the job disabled")

	cronListCmd.Flags().BoolVarP(&cronListAll, "all", "a", false, "Include disabled jobs")
	cronListCmd.Flags().StringVarP(&cronListOutput, "output", "o", "text", "Output format: text, json or yaml")

	cronRunCmd.Flags().BoolVar(&cronRunDueOnly, "due-only", false, "Only run the job if it is due")

	cronCmd.AddCommand(cronAddCmd)
	cronCmd.AddCommand(cronListCmd)
	cronCmd.AddCommand(cronRunCmd)
	cronCmd.AddCommand(cronRemoveCmd)
	cronCmd.AddCommand(cronStatusCmd)
}
