package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/vietanh2810/eventfinder-api/internal/domain"
	"github.com/vietanh2810/eventfinder-api/internal/repository"
)

type ChatRepository interface {
	Save(ctx context.Context, message domain.ChatMessage) (domain.ChatMessage, error)
	FindRecent(ctx context.Context, eventID uint, limit int) ([]domain.ChatMessage, error)
}

// ChatEventRepository is the part of the event store the chat access policy
// consults.
type ChatEventRepository interface {
	FindByID(ctx context.Context, id uint) (domain.Event, error)
	HasAttendeeStatus(ctx context.Context, eventID, userID uint, status domain.AttendeeStatus) (bool, error)
}

type ChatService struct {
	repo      ChatRepository
	eventRepo ChatEventRepository
	// Limits concurrent inserts so a burst in one room cannot exhaust the
	// database pool for every other room.
	writers *semaphore.Weighted
}

func NewChatService(repo ChatRepository, eventRepo ChatEventRepository, persistWorkers int64) *ChatService {
	if persistWorkers < 1 {
		persistWorkers = 1
	}

	return &ChatService{
		repo:      repo,
		eventRepo: eventRepo,
		writers:   semaphore.NewWeighted(persistWorkers),
	}
}

// Authorize reports whether the identity may join the event's chat room: the
// host always may, everybody else needs a "going" attendance. A missing event
// is a plain denial; any other lookup failure is returned as an error.
func (s *ChatService) Authorize(ctx context.Context, identity domain.Identity, eventID uint) (bool, error) {
	event, err := s.eventRepo.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("s.eventRepo.FindByID -> %w", err)
	}

	if !identity.IsAuthenticated() {
		return false, nil
	}
	if event.IsHostedBy(identity.UserID) {
		return true, nil
	}

	going, err := s.eventRepo.HasAttendeeStatus(ctx, eventID, identity.UserID, domain.StatusGoing)
	if err != nil {
		return false, fmt.Errorf("s.eventRepo.HasAttendeeStatus -> %w", err)
	}

	return going, nil
}

// Append persists a message. senderID is nil for anonymous senders.
func (s *ChatService) Append(ctx context.Context, eventID uint, senderID *uint, username, text string) (domain.ChatMessage, error) {
	if err := s.writers.Acquire(ctx, 1); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("s.writers.Acquire -> %w", err)
	}
	defer s.writers.Release(1)

	if senderID == nil {
		username = domain.AnonymousUsername
	}

	saved, err := s.repo.Save(ctx, domain.ChatMessage{
		EventID:  eventID,
		SenderID: senderID,
		Username: username,
		Content:  text,
	})
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("s.repo.Save -> %w", err)
	}

	return saved, nil
}

// RecentHistory returns the last limit messages of the event, oldest first.
func (s *ChatService) RecentHistory(ctx context.Context, eventID uint, limit int) ([]domain.ChatMessage, error) {
	messages, err := s.repo.FindRecent(ctx, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("s.repo.FindRecent -> %w", err)
	}

	return messages, nil
}
