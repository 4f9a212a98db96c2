package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() []error {
	var errs []error

	if c.Workspace.Path == "" {
		errs = append(errs, fmt.Errorf("workspace.path is required"))
	} else if strings.Contains(c.Workspace.Path, "..") {
		errs = append(errs, fmt.Errorf("workspace.path contains potentially dangerous path traversal sequence"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
	}

	if c.Cron.TickSeconds < 1 {
		errs = append(errs, fmt.Errorf("cron.tick_seconds must be >= 1 (got %d)", c.Cron.TickSeconds))
	}
	if c.Heartbeat.Enabled && c.Heartbeat.IntervalMinutes < 1 {
		errs = append(errs, fmt.Errorf("heartbeat.interval_minutes must be >= 1 (got %d)", c.Heartbeat.IntervalMinutes))
	}
	if c.Heartbeat.Enabled && strings.TrimSpace(c.Agent.Command) == "" {
		errs = append(errs, fmt.Errorf("agent.command is required when heartbeat is enabled"))
	}
	if c.Agent.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("agent.timeout_seconds must not be negative"))
	}

	if c.Channels.Telegram.Enabled {
		if c.Channels.Telegram.Token == "" {
			errs = append(errs, fmt.Errorf("channels.telegram.token is required when telegram is enabled"))
		} else if err := validateTelegramToken(c.Channels.Telegram.Token); err != nil {
			errs = append(errs, err)
		}
		if c.Channels.Telegram.RatePerSecond <= 0 {
			errs = append(errs, fmt.Errorf("channels.telegram.rate_per_second must be > 0"))
		}
	}

	if c.Workers.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("workers.pool_size must be >= 1 (got %d)", c.Workers.PoolSize))
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			errs = append(errs, fmt.Errorf("invalid metrics.listen %q: %w", c.Metrics.Listen, err))
		}
	}

	return errs
}

func validateTelegramToken(token string) error {
	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return formatValidationError("channels.telegram.token", "invalid format (expected <bot_id>:<token>)", token)
	}

	botID, botToken := parts[0], parts[1]
	if len(botID) < 3 || len(botID) > 15 {
		return fmt.Errorf("telegram token has invalid bot ID length (expected 3-15 digits, got %d digits)", len(botID))
	}
	for _, r := range botID {
		if r < '0' || r > '9' {
			return fmt.Errorf("telegram token has invalid bot ID (expected digits only, got: %s)", botID)
		}
	}
	if len(botToken) < 10 || len(botToken) > 50 {
		return formatValidationError("channels.telegram.token", "invalid token length", token)
	}
	return nil
}
