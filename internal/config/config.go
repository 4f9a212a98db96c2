package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Default returns the configuration used for keys a file leaves out.
func Default() Config {
	cfg := Config{
		Cron: CronConfig{Enabled: true},
	}
	applyDefaults(&cfg)
	return cfg
}

// Load reads a TOML config file. Keys the file omits keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes TOML config text.
func Parse(data string) (*Config, error) {
	cfg := Config{
		Cron: CronConfig{Enabled: true},
	}
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	expandEnvVars(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills zero values.
func applyDefaults(c *Config) {
	if c.Workspace.Path == "" {
		c.Workspace.Path = expandHome("~/.openclaw")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Cron.TickSeconds == 0 {
		c.Cron.TickSeconds = 5
	}
	if c.Cron.MainSessionKey == "" {
		c.Cron.MainSessionKey = "main"
	}

	if c.Heartbeat.IntervalMinutes == 0 {
		c.Heartbeat.IntervalMinutes = 30
	}

	if c.Agent.TimeoutSeconds == 0 {
		c.Agent.TimeoutSeconds = 600
	}

	if c.Delivery.Webhook.TimeoutSeconds == 0 {
		c.Delivery.Webhook.TimeoutSeconds = 10
	}

	if c.Channels.Telegram.SendTimeoutSeconds == 0 {
		c.Channels.Telegram.SendTimeoutSeconds = 10
	}
	if c.Channels.Telegram.RatePerSecond == 0 {
		c.Channels.Telegram.RatePerSecond = 1
	}
	if c.Channels.Telegram.Burst == 0 {
		c.Channels.Telegram.Burst = 3
	}

	if c.Workers.PoolSize == 0 {
		c.Workers.PoolSize = 4
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = 64
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9464"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "openclaw"
	}

	if c.MessageBus.Capacity == 0 {
		c.MessageBus.Capacity = 1000
	}
}

// expandEnvVars expands ${VAR} references and ~ in the fields that take them.
func expandEnvVars(c *Config) {
	c.Channels.Telegram.Token = expandEnv(c.Channels.Telegram.Token)
	c.Agent.Command = expandEnv(c.Agent.Command)
	c.Delivery.DefaultTo = expandEnv(c.Delivery.DefaultTo)

	c.Workspace.Path = expandHome(expandEnv(c.Workspace.Path))
	c.Cron.StorePath = expandHome(expandEnv(c.Cron.StorePath))
	c.Logging.Output = expandHome(expandEnv(c.Logging.Output))
}

// expandEnv expands a value of the form ${VAR} or ${VAR:default}.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		if val := os.Getenv(parts[0]); val != "" {
			return val
		}
		return parts[1]
	}

	return os.Getenv(content)
}

// expandHome expands a leading ~ in a path.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
