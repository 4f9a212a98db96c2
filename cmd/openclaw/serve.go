package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vultr740-byte/openclaw/internal/app"
	"github.com/vultr740-byte/openclaw/internal/logger"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler daemon",
	Long: `Run the scheduler daemon with the given configuration: the cron
timer, the heartbeat, the delivery channels and the metrics endpoint.

SIGINT and SIGTERM shut down gracefully, SIGHUP restarts all components.`,
	Args: cobra.NoArgs,
	RunE: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	logger.SetDefault(log)

	log.Info("starting openclaw",
		logger.Field{Key: "version", Value: Version},
		logger.Field{Key: "git_commit", Value: GitCommit},
		logger.Field{Key: "workspace", Value: cfg.Workspace.Path},
		logger.Field{Key: "cron_enabled", Value: cfg.Cron.Enabled},
		logger.Field{Key: "heartbeat_enabled", Value: cfg.Heartbeat.Enabled})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, log)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := a.Restart(); err != nil {
					log.Error("restart failed", err)
				}
			}
		}
	}()

	if err := a.Run(ctx); err != nil {
		return err
	}
	log.Info("openclaw stopped")
	return nil
}

// runOneShot wires the application for a single CLI operation and shuts it
// down when fn returns.
func runOneShot(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, true)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a := app.New(cfg, log).WithOptions(app.Options{OneShot: true})
	if err := a.Initialize(ctx); err != nil {
		_ = a.Shutdown()
		return err
	}
	defer func() { _ = a.Shutdown() }()
	return fn(ctx, a)
}
