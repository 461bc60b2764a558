package repository

import (
	"context"
	"fmt"

	"github.com/vietanh2810/eventfinder-api/internal/domain"
	"github.com/vietanh2810/eventfinder-api/internal/repository/dao"
)

type ChatDAO interface {
	Insert(ctx context.Context, message dao.ChatMessage) (dao.ChatMessage, error)
	FindLatestByEventID(ctx context.Context, eventID uint, limit int) ([]dao.ChatMessage, error)
}

type ChatRepository struct {
	dao ChatDAO
}

func NewChatRepository(dao ChatDAO) *ChatRepository {
	return &ChatRepository{
		dao: dao,
	}
}

func (r *ChatRepository) Save(ctx context.Context, message domain.ChatMessage) (domain.ChatMessage, error) {
	saved, err := r.dao.Insert(ctx, dao.ChatMessage{
		EventID: message.EventID,
		UserID:  message.SenderID,
		Content: message.Content,
		SentAt:  message.SentAt,
	})
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("r.dao.Insert -> %w", err)
	}

	out := r.daoToDomain(saved)
	if message.Username != "" {
		out.Username = message.Username
	}

	return out, nil
}

// FindRecent returns the latest limit messages of the event, oldest first.
func (r *ChatRepository) FindRecent(ctx context.Context, eventID uint, limit int) ([]domain.ChatMessage, error) {
	found, err := r.dao.FindLatestByEventID(ctx, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("r.dao.FindLatestByEventID -> %w", err)
	}

	messages := make([]domain.ChatMessage, len(found))
	for i, m := range found {
		messages[len(found)-1-i] = r.daoToDomain(m)
	}

	return messages, nil
}

func (r *ChatRepository) daoToDomain(m dao.ChatMessage) domain.ChatMessage {
	username := domain.AnonymousUsername
	if m.User != nil {
		username = m.User.Username
	}

	return domain.ChatMessage{
		ID:       m.ID,
		EventID:  m.EventID,
		SenderID: m.UserID,
		Username: username,
		Content:  m.Content,
		SentAt:   m.SentAt,
	}
}
