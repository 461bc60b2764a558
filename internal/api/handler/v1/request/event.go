package request

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/vietanh2810/eventfinder-api/internal/domain"
)

var errInvalidStartsAt = errors.New("starts_at must be an RFC 3339 date-time")

type CreateEventRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	StartsAt    string          `json:"starts_at"`
	Categories  string          `json:"categories"` // comma separated
	Location    LocationRequest `json:"location"`
}

type LocationRequest struct {
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	City      string   `json:"city"`
	Country   string   `json:"country"`
	Postcode  string   `json:"postcode"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (req *CreateEventRequest) Validate() error {
	err := validation.ValidateStruct(
		req,
		validation.Field(&req.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&req.Description, validation.Length(0, 5000)),
		validation.Field(&req.StartsAt, validation.Required, validation.By(rfc3339)),
		validation.Field(&req.Location),
	)
	if err != nil {
		return err
	}

	return nil
}

func (req LocationRequest) Validate() error {
	return validation.ValidateStruct(
		&req,
		validation.Field(&req.Name, validation.Required),
		validation.Field(&req.Latitude, validation.NotNil, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&req.Longitude, validation.NotNil, validation.Min(-180.0), validation.Max(180.0)),
	)
}

// ToDomain must only be called after Validate succeeded.
func (req *CreateEventRequest) ToDomain() domain.Event {
	startsAt, _ := time.Parse(time.RFC3339, req.StartsAt)

	return domain.Event{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		StartsAt:    startsAt,
		Categories:  strings.Split(req.Categories, ","),
		Location: &domain.Location{
			Name:      req.Location.Name,
			Address:   req.Location.Address,
			City:      req.Location.City,
			Country:   req.Location.Country,
			Postcode:  req.Location.Postcode,
			Latitude:  *req.Location.Latitude,
			Longitude: *req.Location.Longitude,
		},
	}
}

type UpdateEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	StartsAt    string `json:"starts_at"`
}

func (req *UpdateEventRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&req.Description, validation.Length(0, 5000)),
		validation.Field(&req.StartsAt, validation.Required, validation.By(rfc3339)),
	)
}

func (req *UpdateEventRequest) ToDomain(eventID uint) domain.Event {
	startsAt, _ := time.Parse(time.RFC3339, req.StartsAt)

	return domain.Event{
		ID:          eventID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		StartsAt:    startsAt,
	}
}

type AttendanceRequest struct {
	Status string `json:"status"`
}

func (req *AttendanceRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Status, validation.Required, validation.In(
			string(domain.StatusGoing),
			string(domain.StatusInterested),
			string(domain.StatusNotGoing),
		)),
	)
}

func rfc3339(value interface{}) error {
	s, _ := value.(string)
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		return errInvalidStartsAt
	}
	return nil
}
