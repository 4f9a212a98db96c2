package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vultr740-byte/openclaw/internal/config"
	"github.com/vultr740-byte/openclaw/internal/logger"
)

const defaultConfigPath = "./config.toml"

var (
	configPath string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "openclaw",
	Short: "openclaw - scheduled agent jobs and followups",
	Long: `openclaw runs scheduled jobs for an agent: periodic and one-time
system events for the main session, isolated agent turns whose replies are
announced to a chat or posted to a webhook, and short-lived followups that
poll until a real answer arrives.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: ./config.toml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "Override log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cronCmd)
	rootCmd.AddCommand(followupCmd)
	rootCmd.AddCommand(toolsCmd)
}

// loadConfig reads the config file named by --config. Without the flag a
// missing ./config.toml means defaults.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvOptional(".env"); err != nil {
		return nil, err
	}

	path := configPath
	if path == "" {
		path = defaultConfigPath
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			cfg := config.Default()
			return applyOverrides(&cfg)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return applyOverrides(cfg)
}

func applyOverrides(cfg *config.Config) (*config.Config, error) {
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, "  - "+e.Error())
		}
		return nil, fmt.Errorf("configuration validation failed:\n%s", strings.Join(msgs, "\n"))
	}
	return cfg, nil
}

// newLogger builds the configured logger. One-shot commands log to stderr
// so their stdout stays machine-readable.
func newLogger(cfg *config.Config, oneShot bool) (*logger.Logger, error) {
	lc := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if oneShot {
		lc.Output = "stderr"
		lc.Format = "text"
		if logLevel == "" {
			lc.Level = "warn"
		}
	}
	log, err := logger.New(lc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}
