package domain

import "time"

type ChatMessage struct {
	ID       uint      `json:"id"`
	EventID  uint      `json:"event_id"`
	SenderID *uint     `json:"sender_id"`
	Username string    `json:"username"`
	Content  string    `json:"message"`
	SentAt   time.Time `json:"timestamp"`
}
