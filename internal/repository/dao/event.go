package dao

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrEventNotFound = errors.New("event not found")
)

type Location struct {
	ID        uint    `gorm:"primaryKey"`
	Name      string  `gorm:"not null"`
	Address   string  `gorm:"not null"`
	City      string  `gorm:"not null"`
	Country   string  `gorm:"not null"`
	Postcode  string  `gorm:"not null"`
	Latitude  float64 `gorm:"not null;index:idx_locations_coords,priority:1"`
	Longitude float64 `gorm:"not null;index:idx_locations_coords,priority:2"`
}

type Category struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"unique;not null"`
}

type Event struct {
	ID          uint       `gorm:"primaryKey"`
	HostID      uint       `gorm:"not null;index"`
	Host        User       `gorm:"foreignKey:HostID"`
	Title       string     `gorm:"not null"`
	Description string     `gorm:"type:text"`
	StartsAt    time.Time  `gorm:"not null;index"`
	LocationID  *uint      `gorm:"index"`
	Location    *Location  `gorm:"foreignKey:LocationID;constraint:OnDelete:SET NULL"`
	Categories  []Category `gorm:"many2many:event_categories;"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Attendee struct {
	ID        uint      `gorm:"primaryKey"`
	EventID   uint      `gorm:"not null;uniqueIndex:idx_attendees_event_user,priority:1"`
	Event     Event     `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_attendees_event_user,priority:2"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Status    string    `gorm:"not null;index"` // "going", "interested" or "not_going"
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type EventDAO struct {
	db *gorm.DB
}

func NewEventDAO(db *gorm.DB) *EventDAO {
	return &EventDAO{
		db: db,
	}
}

// Insert creates the event and links it to the named categories, creating
// the categories that do not exist yet.
func (d *EventDAO) Insert(ctx context.Context, event Event, categoryNames []string) (Event, error) {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		categories := make([]Category, 0, len(categoryNames))
		for _, name := range categoryNames {
			category := Category{Name: name}
			if err := tx.Where(Category{Name: name}).FirstOrCreate(&category).Error; err != nil {
				return err
			}
			categories = append(categories, category)
		}
		event.Categories = categories

		return tx.Omit("Host").Create(&event).Error
	})
	if err != nil {
		return Event{}, err
	}

	return d.FindByID(ctx, event.ID)
}

func (d *EventDAO) FindByID(ctx context.Context, id uint) (Event, error) {
	var event Event

	result := d.preloaded(ctx).First(&event, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return Event{}, ErrEventNotFound
		}

		return Event{}, result.Error
	}

	return event, nil
}

// FindUpcoming returns events starting at or after from, soonest first. An
// empty category matches every event.
func (d *EventDAO) FindUpcoming(ctx context.Context, from time.Time, category string) ([]Event, error) {
	var events []Event

	query := d.preloaded(ctx).Where("events.starts_at >= ?", from)
	if category != "" {
		query = query.
			Joins("JOIN event_categories ON event_categories.event_id = events.id").
			Joins("JOIN categories ON categories.id = event_categories.category_id").
			Where("categories.name = ?", category)
	}

	result := query.Order("events.starts_at").Find(&events)
	if result.Error != nil {
		return nil, result.Error
	}

	return events, nil
}

func (d *EventDAO) FindHostedBy(ctx context.Context, hostID uint, from time.Time) ([]Event, error) {
	var events []Event

	result := d.preloaded(ctx).
		Where("events.host_id = ? AND events.starts_at >= ?", hostID, from).
		Order("events.starts_at").
		Find(&events)
	if result.Error != nil {
		return nil, result.Error
	}

	return events, nil
}

// FindJoinedBy returns upcoming events the user attends with status, leaving
// out the ones the user hosts.
func (d *EventDAO) FindJoinedBy(ctx context.Context, userID uint, status string, from time.Time) ([]Event, error) {
	var events []Event

	result := d.preloaded(ctx).
		Joins("JOIN attendees ON attendees.event_id = events.id").
		Where("attendees.user_id = ? AND attendees.status = ?", userID, status).
		Where("events.host_id <> ? AND events.starts_at >= ?", userID, from).
		Order("events.starts_at").
		Find(&events)
	if result.Error != nil {
		return nil, result.Error
	}

	return events, nil
}

func (d *EventDAO) Update(ctx context.Context, event Event) (Event, error) {
	result := d.db.WithContext(ctx).
		Model(&Event{ID: event.ID}).
		Updates(map[string]interface{}{
			"title":       event.Title,
			"description": event.Description,
			"starts_at":   event.StartsAt,
		})
	if result.Error != nil {
		return Event{}, result.Error
	}
	if result.RowsAffected == 0 {
		return Event{}, ErrEventNotFound
	}

	return d.FindByID(ctx, event.ID)
}

// UpsertAttendee records the attendee's status, replacing any previous one
// for the same event and user.
func (d *EventDAO) UpsertAttendee(ctx context.Context, attendee Attendee) (Attendee, error) {
	result := d.db.WithContext(ctx).
		Omit("Event", "User").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
		}).
		Create(&attendee)
	if result.Error != nil {
		return Attendee{}, result.Error
	}

	return attendee, nil
}

func (d *EventDAO) AttendeeExists(ctx context.Context, eventID, userID uint, status string) (bool, error) {
	var count int64

	result := d.db.WithContext(ctx).
		Model(&Attendee{}).
		Where("event_id = ? AND user_id = ? AND status = ?", eventID, userID, status).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}

	return count > 0, nil
}

// FindLocationsInBox returns the locations inside the latitude/longitude
// box centred on (lat, lng).
func (d *EventDAO) FindLocationsInBox(ctx context.Context, lat, lng, delta float64) ([]Location, error) {
	var locations []Location

	result := d.db.WithContext(ctx).
		Where("latitude BETWEEN ? AND ?", lat-delta, lat+delta).
		Where("longitude BETWEEN ? AND ?", lng-delta, lng+delta).
		Find(&locations)
	if result.Error != nil {
		return nil, result.Error
	}

	return locations, nil
}

func (d *EventDAO) InsertLocation(ctx context.Context, location Location) (Location, error) {
	result := d.db.WithContext(ctx).Create(&location)
	if result.Error != nil {
		return Location{}, result.Error
	}

	return location, nil
}

func (d *EventDAO) preloaded(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx).
		Model(&Event{}).
		Preload("Location").
		Preload("Categories")
}
