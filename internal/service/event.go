package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vietanh2810/eventfinder-api/internal/domain"
	"github.com/vietanh2810/eventfinder-api/internal/repository"
)

const (
	// Locations closer than this are treated as the same place.
	sameLocationKm = 0.01
	// Half-width in degrees of the box searched for nearby locations.
	locationBoxDeg = 0.01
)

var (
	ErrEventNotFound       = repository.ErrEventNotFound
	ErrEventInPast         = errors.New("event cannot start in the past")
	ErrNotEventHost        = errors.New("only the host can modify this event")
	ErrInvalidAttendStatus = errors.New("invalid attendance status")
)

type EventRepository interface {
	Create(ctx context.Context, event domain.Event) (domain.Event, error)
	FindByID(ctx context.Context, id uint) (domain.Event, error)
	FindUpcoming(ctx context.Context, from time.Time, category string) ([]domain.Event, error)
	FindHostedBy(ctx context.Context, hostID uint, from time.Time) ([]domain.Event, error)
	FindJoinedBy(ctx context.Context, userID uint, status domain.AttendeeStatus, from time.Time) ([]domain.Event, error)
	Update(ctx context.Context, event domain.Event) (domain.Event, error)
	SetAttendance(ctx context.Context, attendee domain.Attendee) (domain.Attendee, error)
	HasAttendeeStatus(ctx context.Context, eventID, userID uint, status domain.AttendeeStatus) (bool, error)
	FindLocationsInBox(ctx context.Context, lat, lng, delta float64) ([]domain.Location, error)
	CreateLocation(ctx context.Context, location domain.Location) (domain.Location, error)
}

type EventService struct {
	repo EventRepository
	now  func() time.Time
}

func NewEventService(repo EventRepository) *EventService {
	return &EventService{
		repo: repo,
		now:  time.Now,
	}
}

// CreateEvent stores a new event hosted by hostID. A location within a few
// metres of an existing one is reused instead of duplicated.
func (s *EventService) CreateEvent(ctx context.Context, hostID uint, event domain.Event) (domain.Event, error) {
	if event.StartsAt.Before(s.now()) {
		return domain.Event{}, ErrEventInPast
	}

	event.HostID = hostID
	event.Categories = normalizeCategories(event.Categories)

	if event.Location != nil {
		location, err := s.resolveLocation(ctx, *event.Location)
		if err != nil {
			return domain.Event{}, err
		}
		event.Location = &location
	}

	created, err := s.repo.Create(ctx, event)
	if err != nil {
		return domain.Event{}, fmt.Errorf("s.repo.Create -> %w", err)
	}

	return created, nil
}

func (s *EventService) GetEvent(ctx context.Context, id uint) (domain.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Event{}, fmt.Errorf("s.repo.FindByID -> %w", err)
	}

	return event, nil
}

func (s *EventService) ListUpcoming(ctx context.Context, category string) ([]domain.Event, error) {
	events, err := s.repo.FindUpcoming(ctx, s.now(), strings.TrimSpace(category))
	if err != nil {
		return nil, fmt.Errorf("s.repo.FindUpcoming -> %w", err)
	}

	return events, nil
}

func (s *EventService) UpdateEvent(ctx context.Context, userID uint, changes domain.Event) (domain.Event, error) {
	event, err := s.repo.FindByID(ctx, changes.ID)
	if err != nil {
		return domain.Event{}, fmt.Errorf("s.repo.FindByID -> %w", err)
	}
	if !event.IsHostedBy(userID) {
		return domain.Event{}, ErrNotEventHost
	}
	if !changes.StartsAt.Equal(event.StartsAt) && changes.StartsAt.Before(s.now()) {
		return domain.Event{}, ErrEventInPast
	}

	event.Title = changes.Title
	event.Description = changes.Description
	event.StartsAt = changes.StartsAt

	updated, err := s.repo.Update(ctx, event)
	if err != nil {
		return domain.Event{}, fmt.Errorf("s.repo.Update -> %w", err)
	}

	return updated, nil
}

func (s *EventService) SetAttendance(ctx context.Context, eventID, userID uint, status domain.AttendeeStatus) (domain.Attendee, error) {
	if !status.IsValid() {
		return domain.Attendee{}, ErrInvalidAttendStatus
	}

	if _, err := s.repo.FindByID(ctx, eventID); err != nil {
		return domain.Attendee{}, fmt.Errorf("s.repo.FindByID -> %w", err)
	}

	attendee, err := s.repo.SetAttendance(ctx, domain.Attendee{
		EventID: eventID,
		UserID:  userID,
		Status:  status,
	})
	if err != nil {
		return domain.Attendee{}, fmt.Errorf("s.repo.SetAttendance -> %w", err)
	}

	return attendee, nil
}

func (s *EventService) Dashboard(ctx context.Context, userID uint) (domain.Dashboard, error) {
	now := s.now()

	hosted, err := s.repo.FindHostedBy(ctx, userID, now)
	if err != nil {
		return domain.Dashboard{}, fmt.Errorf("s.repo.FindHostedBy -> %w", err)
	}

	joined, err := s.repo.FindJoinedBy(ctx, userID, domain.StatusGoing, now)
	if err != nil {
		return domain.Dashboard{}, fmt.Errorf("s.repo.FindJoinedBy -> %w", err)
	}

	return domain.Dashboard{Hosted: hosted, Joined: joined}, nil
}

func (s *EventService) resolveLocation(ctx context.Context, location domain.Location) (domain.Location, error) {
	nearby, err := s.repo.FindLocationsInBox(ctx, location.Latitude, location.Longitude, locationBoxDeg)
	if err != nil {
		return domain.Location{}, fmt.Errorf("s.repo.FindLocationsInBox -> %w", err)
	}

	for _, l := range nearby {
		if haversineKm(location.Latitude, location.Longitude, l.Latitude, l.Longitude) < sameLocationKm {
			return l, nil
		}
	}

	created, err := s.repo.CreateLocation(ctx, location)
	if err != nil {
		return domain.Location{}, fmt.Errorf("s.repo.CreateLocation -> %w", err)
	}

	return created, nil
}

// normalizeCategories trims names, drops blanks and removes duplicates while
// keeping the first spelling seen.
func normalizeCategories(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}

	return out
}
