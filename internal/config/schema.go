// Package config loads the openclaw configuration. It supports TOML files
// with environment variable expansion, default values and validation.
//
// Configuration structure:
//   - [workspace]: workspace directory (HEARTBEAT.md, cron store)
//   - [logging]: level, format and output
//   - [cron]: scheduler switch, store path and tick
//   - [heartbeat]: periodic heartbeat turn
//   - [agent]: external agent command
//   - [delivery]: default announce route and webhook settings
//   - [channels.telegram]: announce sender
//   - [workers]: pool running due jobs
//   - [metrics]: Prometheus endpoint
//   - [message_bus]: bus capacity
//
// Environment variables can be referenced using ${VAR} or ${VAR:default}
// syntax, for example token = "${TELEGRAM_TOKEN}".
package config

import "path/filepath"

// Config represents the main application configuration.
type Config struct {
	Workspace  WorkspaceConfig  `toml:"workspace" yaml:"workspace"`
	Logging    LoggingConfig    `toml:"logging" yaml:"logging"`
	Cron       CronConfig       `toml:"cron" yaml:"cron"`
	Heartbeat  HeartbeatConfig  `toml:"heartbeat" yaml:"heartbeat"`
	Agent      AgentConfig      `toml:"agent" yaml:"agent"`
	Delivery   DeliveryConfig   `toml:"delivery" yaml:"delivery"`
	Channels   ChannelsConfig   `toml:"channels" yaml:"channels"`
	Workers    WorkersConfig    `toml:"workers" yaml:"workers"`
	Metrics    MetricsConfig    `toml:"metrics" yaml:"metrics"`
	MessageBus MessageBusConfig `toml:"message_bus" yaml:"message_bus"`
}

// WorkspaceConfig is the agent workspace directory.
type WorkspaceConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// LoggingConfig configures internal/logger.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	Output string `toml:"output" yaml:"output"`
}

const (
	// CronSubdirectory is the subdirectory name for the job store within the workspace
	CronSubdirectory = "cron"
	// CronJobsFilename is the job store file name.
	CronJobsFilename = "jobs.json"
)

// CronConfig configures the scheduler.
type CronConfig struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	StorePath      string `toml:"store_path" yaml:"store_path"`
	TickSeconds    int    `toml:"tick_seconds" yaml:"tick_seconds"`
	MainSessionKey string `toml:"main_session_key" yaml:"main_session_key"`
}

// ResolveStorePath returns StorePath, or the default location in the workspace.
func (c *CronConfig) ResolveStorePath(workspacePath string) string {
	if c.StorePath != "" {
		return c.StorePath
	}
	return filepath.Join(workspacePath, CronSubdirectory, CronJobsFilename)
}

// HeartbeatConfig configures the periodic heartbeat turn.
type HeartbeatConfig struct {
	Enabled         bool `toml:"enabled" yaml:"enabled"`
	IntervalMinutes int  `toml:"interval_minutes" yaml:"interval_minutes"`
}

// AgentConfig describes the external agent command.
type AgentConfig struct {
	Command        string `toml:"command" yaml:"command"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// DeliveryConfig configures the delivery router.
type DeliveryConfig struct {
	DefaultChannel string        `toml:"default_channel" yaml:"default_channel"`
	DefaultTo      string        `toml:"default_to" yaml:"default_to"`
	Webhook        WebhookConfig `toml:"webhook" yaml:"webhook"`
}

// WebhookConfig configures webhook delivery.
type WebhookConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// ChannelsConfig holds the channel senders.
type ChannelsConfig struct {
	Telegram TelegramConfig `toml:"telegram" yaml:"telegram"`
}

// TelegramConfig configures the Telegram announce sender.
type TelegramConfig struct {
	Enabled            bool    `toml:"enabled" yaml:"enabled"`
	Token              string  `toml:"token" yaml:"token"`
	SendTimeoutSeconds int     `toml:"send_timeout_seconds" yaml:"send_timeout_seconds"`
	RatePerSecond      float64 `toml:"rate_per_second" yaml:"rate_per_second"`
	Burst              int     `toml:"burst" yaml:"burst"`
	QuietMode          bool    `toml:"quiet_mode" yaml:"quiet_mode"`
}

// WorkersConfig configures the worker pool.
type WorkersConfig struct {
	PoolSize  int `toml:"pool_size" yaml:"pool_size"`
	QueueSize int `toml:"queue_size" yaml:"queue_size"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled" yaml:"enabled"`
	Listen    string `toml:"listen" yaml:"listen"`
	Namespace string `toml:"namespace" yaml:"namespace"`
}

// MessageBusConfig configures the message bus.
type MessageBusConfig struct {
	Capacity int `toml:"capacity" yaml:"capacity"`
}
