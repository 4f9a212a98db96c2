package telegram

import (
	"errors"
	"strings"
	"time"

	telegoapi "github.com/mymmrac/telego/telegoapi"
)

// maxRetryAfter caps how long a rate-limited send waits before its one retry.
const maxRetryAfter = 30 * time.Second

// isParseError reports whether Telegram rejected the message markup.
func isParseError(err error) bool {
	var telErr *telegoapi.Error
	if !errors.As(err, &telErr) || telErr.ErrorCode != 400 {
		return false
	}
	desc := telErr.Description
	return strings.Contains(desc, "can't parse entities") ||
		strings.Contains(desc, "Can't find end of the entity") ||
		strings.Contains(desc, "wrong number of entities") ||
		strings.Contains(desc, "specified new message entity")
}

// retryAfter returns how long Telegram asked us to back off, if it did.
func retryAfter(err error) (time.Duration, bool) {
	var telErr *telegoapi.Error
	if !errors.As(err, &telErr) || telErr.ErrorCode != 429 {
		return 0, false
	}
	d := time.Second
	if telErr.Parameters != nil && telErr.Parameters.RetryAfter > 0 {
		d = time.Duration(telErr.Parameters.RetryAfter) * time.Second
	}
	if d > maxRetryAfter {
		return 0, false
	}
	return d, true
}
