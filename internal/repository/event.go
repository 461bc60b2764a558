package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vietanh2810/eventfinder-api/internal/domain"
	"github.com/vietanh2810/eventfinder-api/internal/repository/dao"
)

var (
	ErrEventNotFound = dao.ErrEventNotFound
)

type EventDAO interface {
	Insert(ctx context.Context, event dao.Event, categoryNames []string) (dao.Event, error)
	FindByID(ctx context.Context, id uint) (dao.Event, error)
	FindUpcoming(ctx context.Context, from time.Time, category string) ([]dao.Event, error)
	FindHostedBy(ctx context.Context, hostID uint, from time.Time) ([]dao.Event, error)
	FindJoinedBy(ctx context.Context, userID uint, status string, from time.Time) ([]dao.Event, error)
	Update(ctx context.Context, event dao.Event) (dao.Event, error)
	UpsertAttendee(ctx context.Context, attendee dao.Attendee) (dao.Attendee, error)
	AttendeeExists(ctx context.Context, eventID, userID uint, status string) (bool, error)
	FindLocationsInBox(ctx context.Context, lat, lng, delta float64) ([]dao.Location, error)
	InsertLocation(ctx context.Context, location dao.Location) (dao.Location, error)
}

type EventRepository struct {
	dao EventDAO
}

func NewEventRepository(dao EventDAO) *EventRepository {
	return &EventRepository{
		dao: dao,
	}
}

func (r *EventRepository) Create(ctx context.Context, event domain.Event) (domain.Event, error) {
	created, err := r.dao.Insert(ctx, r.domainToDao(event), event.Categories)
	if err != nil {
		return domain.Event{}, fmt.Errorf("r.dao.Insert -> %w", err)
	}

	return r.daoToDomain(created), nil
}

func (r *EventRepository) FindByID(ctx context.Context, id uint) (domain.Event, error) {
	found, err := r.dao.FindByID(ctx, id)
	if err != nil {
		return domain.Event{}, fmt.Errorf("r.dao.FindByID -> %w", err)
	}

	return r.daoToDomain(found), nil
}

func (r *EventRepository) FindUpcoming(ctx context.Context, from time.Time, category string) ([]domain.Event, error) {
	found, err := r.dao.FindUpcoming(ctx, from, category)
	if err != nil {
		return nil, fmt.Errorf("r.dao.FindUpcoming -> %w", err)
	}

	return r.daosToDomain(found), nil
}

func (r *EventRepository) FindHostedBy(ctx context.Context, hostID uint, from time.Time) ([]domain.Event, error) {
	found, err := r.dao.FindHostedBy(ctx, hostID, from)
	if err != nil {
		return nil, fmt.Errorf("r.dao.FindHostedBy -> %w", err)
	}

	return r.daosToDomain(found), nil
}

func (r *EventRepository) FindJoinedBy(ctx context.Context, userID uint, status domain.AttendeeStatus, from time.Time) ([]domain.Event, error) {
	found, err := r.dao.FindJoinedBy(ctx, userID, string(status), from)
	if err != nil {
		return nil, fmt.Errorf("r.dao.FindJoinedBy -> %w", err)
	}

	return r.daosToDomain(found), nil
}

func (r *EventRepository) Update(ctx context.Context, event domain.Event) (domain.Event, error) {
	updated, err := r.dao.Update(ctx, r.domainToDao(event))
	if err != nil {
		return domain.Event{}, fmt.Errorf("r.dao.Update -> %w", err)
	}

	return r.daoToDomain(updated), nil
}

func (r *EventRepository) SetAttendance(ctx context.Context, attendee domain.Attendee) (domain.Attendee, error) {
	saved, err := r.dao.UpsertAttendee(ctx, dao.Attendee{
		EventID: attendee.EventID,
		UserID:  attendee.UserID,
		Status:  string(attendee.Status),
	})
	if err != nil {
		return domain.Attendee{}, fmt.Errorf("r.dao.UpsertAttendee -> %w", err)
	}

	return domain.Attendee{
		EventID:   saved.EventID,
		UserID:    saved.UserID,
		Status:    domain.AttendeeStatus(saved.Status),
		UpdatedAt: saved.UpdatedAt,
	}, nil
}

func (r *EventRepository) HasAttendeeStatus(ctx context.Context, eventID, userID uint, status domain.AttendeeStatus) (bool, error) {
	ok, err := r.dao.AttendeeExists(ctx, eventID, userID, string(status))
	if err != nil {
		return false, fmt.Errorf("r.dao.AttendeeExists -> %w", err)
	}

	return ok, nil
}

func (r *EventRepository) FindLocationsInBox(ctx context.Context, lat, lng, delta float64) ([]domain.Location, error) {
	found, err := r.dao.FindLocationsInBox(ctx, lat, lng, delta)
	if err != nil {
		return nil, fmt.Errorf("r.dao.FindLocationsInBox -> %w", err)
	}

	locations := make([]domain.Location, len(found))
	for i, l := range found {
		locations[i] = r.locationDaoToDomain(l)
	}

	return locations, nil
}

func (r *EventRepository) CreateLocation(ctx context.Context, location domain.Location) (domain.Location, error) {
	created, err := r.dao.InsertLocation(ctx, dao.Location{
		Name:      location.Name,
		Address:   location.Address,
		City:      location.City,
		Country:   location.Country,
		Postcode:  location.Postcode,
		Latitude:  location.Latitude,
		Longitude: location.Longitude,
	})
	if err != nil {
		return domain.Location{}, fmt.Errorf("r.dao.InsertLocation -> %w", err)
	}

	return r.locationDaoToDomain(created), nil
}

func (r *EventRepository) domainToDao(e domain.Event) dao.Event {
	event := dao.Event{
		ID:          e.ID,
		HostID:      e.HostID,
		Title:       e.Title,
		Description: e.Description,
		StartsAt:    e.StartsAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.Location != nil && e.Location.ID != 0 {
		id := e.Location.ID
		event.LocationID = &id
	}

	return event
}

func (r *EventRepository) daoToDomain(e dao.Event) domain.Event {
	event := domain.Event{
		ID:          e.ID,
		HostID:      e.HostID,
		Title:       e.Title,
		Description: e.Description,
		StartsAt:    e.StartsAt,
		Categories:  make([]string, len(e.Categories)),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	for i, c := range e.Categories {
		event.Categories[i] = c.Name
	}
	if e.Location != nil {
		location := r.locationDaoToDomain(*e.Location)
		event.Location = &location
	}

	return event
}

func (r *EventRepository) daosToDomain(events []dao.Event) []domain.Event {
	out := make([]domain.Event, len(events))
	for i, e := range events {
		out[i] = r.daoToDomain(e)
	}

	return out
}

func (r *EventRepository) locationDaoToDomain(l dao.Location) domain.Location {
	return domain.Location{
		ID:        l.ID,
		Name:      l.Name,
		Address:   l.Address,
		City:      l.City,
		Country:   l.Country,
		Postcode:  l.Postcode,
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
	}
}
