package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vultr740-byte/openclaw/internal/app"
	"github.com/vultr740-byte/openclaw/internal/tools"
)

var followupCmd = &cobra.Command{
	Use:   "followup",
	Short: "Schedule and cancel followups",
	Long: `A followup runs its message as an isolated agent turn every 30
seconds and announces the first reply that is not HEARTBEAT_OK, then
removes itself. It gives up after --minutes (at most 10).`,
}

var followupScheduleCmd = &cobra.Command{
	Use:     "schedule <message>",
	Short:   "Schedule a followup",
	Example: `  openclaw followup schedule "is the deploy finished?" --channel telegram --to 12345`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callTool(cmd, "followup", tools.FollowupArgs{
			Action:          "schedule",
			Message:         args[0],
			DurationMinutes: followupMinutes,
		})
	},
}

var followupCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a followup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callTool(cmd, "followup", tools.FollowupArgs{Action: "cancel", JobID: args[0]})
	},
}

var followupMinutes int

// origin flags stand in for the conversation a tool call would come from.
var originFlags tools.Origin

func addOriginFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&originFlags.Channel, "channel", "", "Channel replies are announced to (default: last active chat)")
	cmd.Flags().StringVar(&originFlags.To, "to", "", "Recipient on --channel")
	cmd.Flags().StringVar(&originFlags.AccountID, "account", "", "Account on --channel")
	cmd.Flags().StringVar(&originFlags.ThreadID, "thread", "", "Thread on --channel")
}

// callTool marshals args and executes the named tool as an agent would.
func callTool(cmd *cobra.Command, name string, args any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return executeTool(cmd, name, string(data), 0)
}

func executeTool(cmd *cobra.Command, name, args string, timeout time.Duration) error {
	return runOneShot(cmd, func(ctx context.Context, a *app.App) error {
		if originFlags.Channel != "" {
			ctx = tools.WithOrigin(ctx, originFlags)
		}
		res, err := tools.ExecuteToolCall(ctx, a.Tools(), tools.ToolCall{
			ID:        "cli",
			Name:      name,
			Arguments: args,
		}, timeout)
		if err != nil {
			return err
		}
		if res.Error != "" {
			return fmt.Errorf("%s", res.Error)
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Content)
		return nil
	})
}

func init() {
	followupScheduleCmd.Flags().IntVarP(&followupMinutes, "minutes", "m", 10, "How long to keep polling, in minutes")
	addOriginFlags(followupScheduleCmd)

	followupCmd.AddCommand(followupScheduleCmd)
	followupCmd.AddCommand(followupCancelCmd)
}
