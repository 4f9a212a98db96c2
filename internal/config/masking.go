package config

import "strings"

// maskSecret keeps the first and last 4 characters of a secret.
func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) < 8 {
		return "***"
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

// MaskTelegramToken masks a bot token but leaves the bot id readable.
func MaskTelegramToken(token string) string {
	if token == "" {
		return ""
	}
	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return maskSecret(token)
	}
	return parts[0] + ":" + maskSecret(parts[1])
}

// Masked returns a copy of c that is safe to print.
func (c Config) Masked() Config {
	c.Channels.Telegram.Token = MaskTelegramToken(c.Channels.Telegram.Token)
	return c
}

// formatValidationError builds a ValidationError quoting the masked value.
func formatValidationError(field, message, secret string) error {
	msg := field + ": " + message
	if secret != "" {
		msg += " (value: " + maskSecret(secret) + ")"
	}
	return &ValidationError{Field: field, Message: msg}
}

// ValidationError is a config problem tied to one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
