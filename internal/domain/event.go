package domain

import "time"

type Event struct {
	ID          uint      `json:"id"`
	HostID      uint      `json:"host_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at"`
	Location    *Location `json:"location,omitempty"`
	Categories  []string  `json:"categories"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (e Event) IsHostedBy(userID uint) bool {
	return userID != 0 && e.HostID == userID
}

type Location struct {
	ID        uint    `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Postcode  string  `json:"postcode"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type AttendeeStatus string

const (
	StatusGoing      AttendeeStatus = "going"
	StatusInterested AttendeeStatus = "interested"
	StatusNotGoing   AttendeeStatus = "not_going"
)

func (s AttendeeStatus) IsValid() bool {
	switch s {
	case StatusGoing, StatusInterested, StatusNotGoing:
		return true
	}
	return false
}

type Attendee struct {
	EventID   uint           `json:"event_id"`
	UserID    uint           `json:"user_id"`
	Status    AttendeeStatus `json:"status"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Dashboard lists the upcoming events a user hosts and the ones they are
// going to.
type Dashboard struct {
	Hosted []Event `json:"hosted"`
	Joined []Event `json:"joined"`
}
