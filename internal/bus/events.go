// Package bus is the in-process message bus between the scheduler and the
// host. Inbound messages carry system events and chat input towards the
// agent side; outbound messages carry announcements towards channel
// senders.
package bus

import (
	"encoding/json"
	"time"
)

// ChannelType identifies where a message came from or is going to.
type ChannelType string

const (
	ChannelTypeTelegram ChannelType = "telegram"
	ChannelTypeWeb      ChannelType = "web"
	ChannelTypeAPI      ChannelType = "api"
	// ChannelTypeSystem marks system events queued by the scheduler.
	ChannelTypeSystem ChannelType = "system"
)

// InboundMessage is a message for the agent side, keyed by session.
type InboundMessage struct {
	ChannelType ChannelType    `json:"channel_type"`
	UserID      string         `json:"user_id"`
	SessionID   string         `json:"session_id"`
	Content     string         `json:"content"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// IsSystemEvent reports whether the message was queued by the scheduler.
func (m *InboundMessage) IsSystemEvent() bool {
	return m.ChannelType == ChannelTypeSystem
}

// OutboundMessage is a message for a channel sender. UserID is the
// channel-specific recipient (a chat id for Telegram).
type OutboundMessage struct {
	ChannelType   ChannelType    `json:"channel_type"`
	UserID        string         `json:"user_id"`
	SessionID     string         `json:"session_id,omitempty"`
	AccountID     string         `json:"account_id,omitempty"`
	ThreadID      string         `json:"thread_id,omitempty"`
	Content       string         `json:"content"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ToJSON serializes the InboundMessage to JSON bytes
func (m *InboundMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON deserializes the InboundMessage from JSON bytes
func (m *InboundMessage) FromJSON(data []byte) error {
	return json.Unmarshal(data, m)
}

// ToJSON serializes the OutboundMessage to JSON bytes
func (m *OutboundMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON deserializes the OutboundMessage from JSON bytes
func (m *OutboundMessage) FromJSON(data []byte) error {
	return json.Unmarshal(data, m)
}

// NewInboundMessage creates a new InboundMessage with the current timestamp
func NewInboundMessage(channelType ChannelType, userID, sessionID, content string, metadata map[string]any) *InboundMessage {
	return &InboundMessage{
		ChannelType: channelType,
		UserID:      userID,
		SessionID:   sessionID,
		Content:     content,
		Timestamp:   time.Now(),
		Metadata:    metadata,
	}
}

// NewSystemEvent creates an inbound system event for sessionKey.
func NewSystemEvent(sessionKey, text string) *InboundMessage {
	return NewInboundMessage(ChannelTypeSystem, "", sessionKey, text, nil)
}

// NewOutboundMessage creates a new OutboundMessage with the current timestamp
func NewOutboundMessage(channelType ChannelType, userID, sessionID, content string, correlationID string, metadata map[string]any) *OutboundMessage {
	return &OutboundMessage{
		ChannelType:   channelType,
		UserID:        userID,
		SessionID:     sessionID,
		Content:       content,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
		Metadata:      metadata,
	}
}
