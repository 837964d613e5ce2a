package models

import (
	"log"

	"gorm.io/gorm"
)

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(
		&User{},
		&Repository{},
		&Commit{},
		&UsageStat{},
		&Tweet{},
	); err != nil {
		return err
	}

	log.Println("Database migrations completed")
	return nil
}
