package db

import (
	"conductor/app/db/models"

	"gorm.io/gorm"
)

// Migrate creates or updates every table of the model list.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		conn = dbConn
	}
	for _, modObj := range models.Models {
		if err := conn.AutoMigrate(modObj); err != nil {
			return err
		}
	}
	return nil
}
