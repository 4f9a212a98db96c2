package tools

import (
	"context"
	"encoding/json"
	"strings"
)

// parseJSON decodes tool arguments, rejecting unknown fields.
func parseJSON(jsonStr string, v any) error {
	if strings.TrimSpace(jsonStr) == "" {
		jsonStr = "{}"
	}
	decoder := json.NewDecoder(strings.NewReader(jsonStr))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Origin is the conversation a tool call came from.
type Origin struct {
	Channel   string
	To        string
	AccountID string
	ThreadID  string
}

type originKey struct{}

// WithOrigin attaches the calling conversation to ctx.
func WithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

// OriginFromContext returns the origin set by WithOrigin.
func OriginFromContext(ctx context.Context) (Origin, bool) {
	o, ok := ctx.Value(originKey{}).(Origin)
	return o, ok && o.Channel != ""
}

func toJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
