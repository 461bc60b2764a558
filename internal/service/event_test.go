package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietanh2810/eventfinder-api/internal/domain"
	"github.com/vietanh2810/eventfinder-api/internal/repository"
)

var fixedNow = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeEventRepo struct {
	events    map[uint]domain.Event
	locations []domain.Location
	attendees []domain.Attendee
	created   domain.Event
	updated   domain.Event

	lastFrom     time.Time
	lastCategory string
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: map[uint]domain.Event{}}
}

func (f *fakeEventRepo) Create(_ context.Context, e domain.Event) (domain.Event, error) {
	e.ID = uint(len(f.events) + 1)
	f.events[e.ID] = e
	f.created = e
	return e, nil
}

func (f *fakeEventRepo) FindByID(_ context.Context, id uint) (domain.Event, error) {
	e, ok := f.events[id]
	if !ok {
		return domain.Event{}, repository.ErrEventNotFound
	}
	return e, nil
}

func (f *fakeEventRepo) FindUpcoming(_ context.Context, from time.Time, category string) ([]domain.Event, error) {
	f.lastFrom, f.lastCategory = from, category
	return []domain.Event{}, nil
}

func (f *fakeEventRepo) FindHostedBy(_ context.Context, hostID uint, from time.Time) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range f.events {
		if e.HostID == hostID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) FindJoinedBy(_ context.Context, userID uint, status domain.AttendeeStatus, from time.Time) ([]domain.Event, error) {
	var out []domain.Event
	for _, a := range f.attendees {
		if a.UserID == userID && a.Status == status {
			out = append(out, f.events[a.EventID])
		}
	}
	return out, nil
}

func (f *fakeEventRepo) Update(_ context.Context, e domain.Event) (domain.Event, error) {
	f.events[e.ID] = e
	f.updated = e
	return e, nil
}

func (f *fakeEventRepo) SetAttendance(_ context.Context, a domain.Attendee) (domain.Attendee, error) {
	f.attendees = append(f.attendees, a)
	return a, nil
}

func (f *fakeEventRepo) HasAttendeeStatus(_ context.Context, eventID, userID uint, status domain.AttendeeStatus) (bool, error) {
	for _, a := range f.attendees {
		if a.EventID == eventID && a.UserID == userID && a.Status == status {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEventRepo) FindLocationsInBox(_ context.Context, lat, lng, delta float64) ([]domain.Location, error) {
	var out []domain.Location
	for _, l := range f.locations {
		if l.Latitude >= lat-delta && l.Latitude <= lat+delta && l.Longitude >= lng-delta && l.Longitude <= lng+delta {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) CreateLocation(_ context.Context, l domain.Location) (domain.Location, error) {
	l.ID = uint(len(f.locations) + 1)
	f.locations = append(f.locations, l)
	return l, nil
}

func newEventFixture() (*EventService, *fakeEventRepo) {
	repo := newFakeEventRepo()
	svc := NewEventService(repo)
	svc.now = func() time.Time { return fixedNow }

	return svc, repo
}

func TestEventService_CreateEvent(t *testing.T) {
	svc, repo := newEventFixture()

	event, err := svc.CreateEvent(context.Background(), 5, domain.Event{
		Title:      "Picnic",
		StartsAt:   fixedNow.Add(time.Hour),
		Categories: []string{" Outdoor", "food", "outdoor", ""},
		Location:   &domain.Location{Name: "Park", Latitude: 48.8566, Longitude: 2.3522},
	})

	require.NoError(t, err)
	assert.Equal(t, uint(5), event.HostID)
	assert.Equal(t, []string{"Outdoor", "food"}, event.Categories)
	require.NotNil(t, event.Location)
	assert.Equal(t, uint(1), event.Location.ID)
	assert.Len(t, repo.locations, 1)
}

func TestEventService_CreateEventReusesNearbyLocation(t *testing.T) {
	svc, repo := newEventFixture()
	repo.locations = []domain.Location{{ID: 1, Name: "Park", Latitude: 48.8566, Longitude: 2.3522}}

	// About 5 metres away.
	event, err := svc.CreateEvent(context.Background(), 5, domain.Event{
		Title:    "Picnic",
		StartsAt: fixedNow.Add(time.Hour),
		Location: &domain.Location{Name: "Park gate", Latitude: 48.85664, Longitude: 2.35225},
	})
	require.NoError(t, err)
	assert.Equal(t, uint(1), event.Location.ID)
	assert.Len(t, repo.locations, 1)

	// About 500 metres away.
	event, err = svc.CreateEvent(context.Background(), 5, domain.Event{
		Title:    "Concert",
		StartsAt: fixedNow.Add(time.Hour),
		Location: &domain.Location{Name: "Hall", Latitude: 48.8611, Longitude: 2.3522},
	})
	require.NoError(t, err)
	assert.Equal(t, uint(2), event.Location.ID)
}

func TestEventService_CreateEventInPast(t *testing.T) {
	svc, repo := newEventFixture()

	_, err := svc.CreateEvent(context.Background(), 5, domain.Event{Title: "Old", StartsAt: fixedNow.Add(-time.Minute)})

	assert.ErrorIs(t, err, ErrEventInPast)
	assert.Empty(t, repo.events)
}

func TestEventService_UpdateEvent(t *testing.T) {
	svc, repo := newEventFixture()
	repo.events[1] = domain.Event{ID: 1, HostID: 5, Title: "Old", StartsAt: fixedNow.Add(time.Hour)}

	_, err := svc.UpdateEvent(context.Background(), 6, domain.Event{ID: 1, Title: "Hijack", StartsAt: fixedNow.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrNotEventHost)

	_, err = svc.UpdateEvent(context.Background(), 5, domain.Event{ID: 2, Title: "Nope"})
	assert.ErrorIs(t, err, ErrEventNotFound)

	_, err = svc.UpdateEvent(context.Background(), 5, domain.Event{ID: 1, Title: "Past", StartsAt: fixedNow.Add(-time.Hour)})
	assert.ErrorIs(t, err, ErrEventInPast)

	updated, err := svc.UpdateEvent(context.Background(), 5, domain.Event{ID: 1, Title: "New", Description: "d", StartsAt: fixedNow.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)
	assert.Equal(t, uint(5), updated.HostID)
}

func TestEventService_SetAttendance(t *testing.T) {
	svc, repo := newEventFixture()
	repo.events[1] = domain.Event{ID: 1, HostID: 5}

	_, err := svc.SetAttendance(context.Background(), 1, 2, "maybe")
	assert.ErrorIs(t, err, ErrInvalidAttendStatus)

	_, err = svc.SetAttendance(context.Background(), 9, 2, domain.StatusGoing)
	assert.ErrorIs(t, err, ErrEventNotFound)

	attendee, err := svc.SetAttendance(context.Background(), 1, 2, domain.StatusGoing)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusGoing, attendee.Status)
}

func TestEventService_ListUpcoming(t *testing.T) {
	svc, repo := newEventFixture()

	_, err := svc.ListUpcoming(context.Background(), "  music ")

	require.NoError(t, err)
	assert.Equal(t, fixedNow, repo.lastFrom)
	assert.Equal(t, "music", repo.lastCategory)
}

func TestEventService_Dashboard(t *testing.T) {
	svc, repo := newEventFixture()
	repo.events[1] = domain.Event{ID: 1, HostID: 5, Title: "Mine"}
	repo.events[2] = domain.Event{ID: 2, HostID: 6, Title: "Theirs"}
	repo.attendees = []domain.Attendee{{EventID: 2, UserID: 5, Status: domain.StatusGoing}}

	dashboard, err := svc.Dashboard(context.Background(), 5)

	require.NoError(t, err)
	require.Len(t, dashboard.Hosted, 1)
	assert.Equal(t, "Mine", dashboard.Hosted[0].Title)
	require.Len(t, dashboard.Joined, 1)
	assert.Equal(t, "Theirs", dashboard.Joined[0].Title)
}

func TestHaversineKm(t *testing.T) {
	// Paris to London.
	assert.InDelta(t, 343.5, haversineKm(48.8566, 2.3522, 51.5074, -0.1278), 1.0)
	assert.Zero(t, haversineKm(10, 10, 10, 10))
}
