package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vultr740-byte/openclaw/internal/app"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and call the agent tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the tool definitions as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShot(cmd, func(ctx context.Context, a *app.App) error {
			out, err := a.Tools().ToJSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <tool> [json-arguments]",
	Short: "Execute a tool call",
	Example: `  openclaw tools call cron '{"action":"list"}'
  openclaw tools call cron '{"action":"add_every","every_seconds":3600,"text":"check mail"}'
  openclaw tools call followup '{"action":"schedule","message":"done yet?"}' --channel telegram --to 12345`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		arguments := ""
		if len(args) == 2 {
			arguments = args[1]
		}
		return executeTool(cmd, args[0], arguments, toolsCallTimeout)
	},
}

var toolsCallTimeout time.Duration

func init() {
	toolsCallCmd.Flags().DurationVar(&toolsCallTimeout, "timeout", 0, "Abort the call after this long (0 waits)")
	addOriginFlags(toolsCallCmd)

	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsCallCmd)
}
