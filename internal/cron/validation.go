package cron

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxDerivedNameLen = 48

// newJob validates in and builds the job it describes, stamped at nowMs.
func newJob(in JobCreate, nowMs int64) (Job, error) {
	schedule, err := validateSchedule(in.Schedule, nowMs)
	if err != nil {
		return Job{}, err
	}
	payload, err := validatePayload(in.Payload)
	if err != nil {
		return Job{}, err
	}

	target := in.SessionTarget
	switch target {
	case "":
		target = SessionMain
		if payload.Kind == PayloadAgentTurn {
			target = SessionIsolated
		}
	case SessionMain, SessionIsolated:
	default:
		return Job{}, &ValidationError{Field: "sessionTarget", Reason: "must be main or isolated"}
	}

	wake := in.WakeMode
	switch wake {
	case "":
		wake = WakeNextHeartbeat
	case WakeNow, WakeNextHeartbeat:
	default:
		return Job{}, &ValidationError{Field: "wakeMode", Reason: "must be now or next-heartbeat"}
	}

	if err := validateDelivery(in.Delivery); err != nil {
		return Job{}, err
	}

	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = deriveName(payload)
	}

	job := Job{
		ID:            uuid.NewString(),
		Name:          name,
		Enabled:       enabled,
		CreatedAtMs:   nowMs,
		UpdatedAtMs:   nowMs,
		Schedule:      schedule,
		SessionTarget: target,
		WakeMode:      wake,
		Payload:       payload,
	}
	if in.Delivery != nil {
		d := *in.Delivery
		job.Delivery = &d
	}
	if in.Followup != nil {
		f := *in.Followup
		f.ExpiresAtMs = cloneInt64(in.Followup.ExpiresAtMs)
		job.Followup = &f
	}
	refreshNextRun(&job)
	return job, nil
}

func validateSchedule(s Schedule, nowMs int64) (Schedule, error) {
	switch s.Kind {
	case ScheduleEvery:
		if s.EveryMs <= 0 {
			return Schedule{}, &ValidationError{Field: "schedule.everyMs", Reason: "must be greater than zero"}
		}
		// An omitted anchor waits one full interval before the first fire.
		if s.AnchorMs <= 0 {
			s.AnchorMs = nowMs + s.EveryMs
		}
		return Schedule{Kind: ScheduleEvery, EveryMs: s.EveryMs, AnchorMs: s.AnchorMs}, nil
	case ScheduleAt:
		s.At = strings.TrimSpace(s.At)
		if s.At == "" {
			return Schedule{}, &ValidationError{Field: "schedule.at", Reason: "is required"}
		}
		if _, err := s.AtMs(); err != nil {
			return Schedule{}, &ValidationError{Field: "schedule.at", Reason: "must be an RFC3339 timestamp"}
		}
		return Schedule{Kind: ScheduleAt, At: s.At}, nil
	case "":
		return Schedule{}, &ValidationError{Field: "schedule.kind", Reason: "is required"}
	default:
		return Schedule{}, &ValidationError{Field: "schedule.kind", Reason: "must be every or at"}
	}
}

func validatePayload(p Payload) (Payload, error) {
	switch p.Kind {
	case PayloadSystemEvent:
		p.Text = strings.TrimSpace(p.Text)
		if p.Text == "" {
			return Payload{}, &ValidationError{Field: "payload.text", Reason: "is required"}
		}
		p.Message = ""
		p.TimeoutSeconds = 0
	case PayloadAgentTurn:
		p.Message = strings.TrimSpace(p.Message)
		if p.Message == "" {
			return Payload{}, &ValidationError{Field: "payload.message", Reason: "is required"}
		}
		if p.TimeoutSeconds < 0 {
			return Payload{}, &ValidationError{Field: "payload.timeoutSeconds", Reason: "must not be negative"}
		}
		p.Text = ""
	case "":
		return Payload{}, &ValidationError{Field: "payload.kind", Reason: "is required"}
	default:
		return Payload{}, &ValidationError{Field: "payload.kind", Reason: "must be systemEvent or agentTurn"}
	}
	if p.Deliver != nil {
		v := *p.Deliver
		p.Deliver = &v
	}
	return p, nil
}

func validateDelivery(d *Delivery) error {
	if d == nil || normalizeDeliveryMode(d.Mode) != DeliveryWebhook {
		return nil
	}
	u, err := url.Parse(strings.TrimSpace(d.To))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "delivery.to", Reason: "webhook delivery needs an http(s) URL"}
	}
	return nil
}

func deriveName(p Payload) string {
	text := p.Text
	if p.Kind == PayloadAgentTurn {
		text = p.Message
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= maxDerivedNameLen {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxDerivedNameLen])) + "…"
}
