package chat

import (
	"time"

	"github.com/vietanh2810/eventfinder-api/internal/domain"
)

const (
	FrameHistory = "history"
	FrameMessage = "message"

	// EventChatMessage is the type of events carried by a room channel.
	EventChatMessage = "chat.message"
)

// Event is what travels through a room channel. ID is nil when the message
// could not be stored.
type Event struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
	ID        *uint     `json:"id,omitempty"`
}

// MessageFrame is the live message shape clients receive.
type MessageFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
	ID        *uint  `json:"id"`
}

func NewMessageFrame(e Event) MessageFrame {
	return MessageFrame{
		Type:      FrameMessage,
		Message:   e.Message,
		Username:  e.Username,
		Timestamp: formatTimestamp(e.Timestamp),
		ID:        e.ID,
	}
}

type HistoryFrame struct {
	Type     string         `json:"type"`
	Messages []HistoryEntry `json:"messages"`
}

type HistoryEntry struct {
	Username  string  `json:"username"`
	Message   string  `json:"message"`
	Timestamp *string `json:"timestamp"`
	ID        *uint   `json:"id"`
}

func NewHistoryFrame(messages []domain.ChatMessage) HistoryFrame {
	entries := make([]HistoryEntry, len(messages))
	for i, m := range messages {
		entries[i] = NewHistoryEntry(m)
	}

	return HistoryFrame{Type: FrameHistory, Messages: entries}
}

func NewHistoryEntry(m domain.ChatMessage) HistoryEntry {
	entry := HistoryEntry{
		Username: m.Username,
		Message:  m.Content,
	}
	if entry.Username == "" {
		entry.Username = domain.AnonymousUsername
	}
	if !m.SentAt.IsZero() {
		ts := formatTimestamp(m.SentAt)
		entry.Timestamp = &ts
	}
	if m.ID != 0 {
		id := m.ID
		entry.ID = &id
	}

	return entry
}

// inboundFrame is the only shape clients may send. A nil Message means the
// field was absent.
type inboundFrame struct {
	Message *string `json:"message"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
