package dao

import "gorm.io/gorm"

func InitTables(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Location{},
		&Category{},
		&Event{},
		&Attendee{},
		&ChatMessage{},
	)
}
