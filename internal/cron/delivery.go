package cron

import (
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LastChannel is the channel sentinel for "reply where we last heard from".
const LastChannel = "last"

// DeliverySource records which field set produced a DeliveryPlan.
type DeliverySource string

const (
	SourceDelivery DeliverySource = "delivery"
	SourcePayload  DeliverySource = "payload"
)

// DeliveryPlan is the resolved decision of whether and where a job's output
// is delivered. ThreadID is nil, an int64 or a non-empty string. Requested
// is the only gate the executor checks: announce and webhook plans from a
// delivery block are requested, none never is.
type DeliveryPlan struct {
	Mode      DeliveryMode   `json:"mode"`
	Channel   string         `json:"channel,omitempty"`
	To        string         `json:"to,omitempty"`
	AccountID string         `json:"accountId,omitempty"`
	ThreadID  any            `json:"threadId,omitempty"`
	Source    DeliverySource `json:"source"`
	Requested bool           `json:"requested"`
}

var accountFold = cases.Lower(language.Und)

// ResolveDeliveryPlan maps a job's delivery block, or its legacy payload
// fields when the block is absent, to a DeliveryPlan. It has no side effects.
func ResolveDeliveryPlan(job *Job) DeliveryPlan {
	payloadChannel := strings.TrimSpace(job.Payload.Channel)
	payloadTo := strings.TrimSpace(job.Payload.To)

	if d := job.Delivery; d != nil {
		mode := normalizeDeliveryMode(d.Mode)
		plan := DeliveryPlan{
			Mode:      mode,
			To:        firstNonEmpty(strings.TrimSpace(d.To), payloadTo),
			AccountID: accountFold.String(strings.TrimSpace(d.AccountID)),
			ThreadID:  normalizeThreadID(d.ThreadID),
			Source:    SourceDelivery,
			Requested: mode != DeliveryNone,
		}
		if mode == DeliveryAnnounce {
			plan.Channel = firstNonEmpty(strings.TrimSpace(d.Channel), payloadChannel, LastChannel)
		}
		return plan
	}

	// Legacy: payload.deliver true is explicit, false is off, unset is auto.
	requested := false
	switch {
	case job.Payload.Deliver == nil:
		requested = payloadTo != ""
	case *job.Payload.Deliver:
		requested = true
	}
	mode := DeliveryNone
	if requested {
		mode = DeliveryAnnounce
	}
	return DeliveryPlan{
		Mode:      mode,
		Channel:   firstNonEmpty(payloadChannel, LastChannel),
		To:        payloadTo,
		Source:    SourcePayload,
		Requested: requested,
	}
}

func normalizeDeliveryMode(mode DeliveryMode) DeliveryMode {
	switch DeliveryMode(strings.ToLower(strings.TrimSpace(string(mode)))) {
	case DeliveryAnnounce, "deliver":
		return DeliveryAnnounce
	case DeliveryWebhook:
		return DeliveryWebhook
	case DeliveryNone:
		return DeliveryNone
	default:
		return DeliveryAnnounce
	}
}

func normalizeThreadID(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return s
		}
		return nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return int64(math.Trunc(t))
	case float32:
		return normalizeThreadID(float64(t))
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	default:
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
