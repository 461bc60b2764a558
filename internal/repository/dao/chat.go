package dao

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type ChatMessage struct {
	ID      uint      `gorm:"primaryKey"`
	EventID uint      `gorm:"not null;index"`
	Event   Event     `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`
	UserID  *uint     `gorm:"index"` // nil for anonymous senders
	User    *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Content string    `gorm:"type:text;not null"`
	SentAt  time.Time `gorm:"not null"`
}

type ChatDAO struct {
	db *gorm.DB
}

func NewChatDAO(db *gorm.DB) *ChatDAO {
	return &ChatDAO{
		db: db,
	}
}

func (d *ChatDAO) Insert(ctx context.Context, message ChatMessage) (ChatMessage, error) {
	if message.SentAt.IsZero() {
		message.SentAt = d.db.NowFunc()
	}

	result := d.db.WithContext(ctx).Omit("Event", "User").Create(&message)
	if result.Error != nil {
		return ChatMessage{}, result.Error
	}

	return message, nil
}

// FindLatestByEventID returns at most limit messages of the event, newest
// first, with their senders loaded.
func (d *ChatDAO) FindLatestByEventID(ctx context.Context, eventID uint, limit int) ([]ChatMessage, error) {
	var messages []ChatMessage

	result := d.db.WithContext(ctx).
		Preload("User").
		Where("event_id = ?", eventID).
		Order("id DESC").
		Limit(limit).
		Find(&messages)
	if result.Error != nil {
		return nil, result.Error
	}

	return messages, nil
}
