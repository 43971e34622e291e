package models

import "time"

// NamedLock rows serialize cluster-wide jobs, the unique name is the lock.
type NamedLock struct {
	ID        string    `gorm:"primaryKey;size:255;"`
	Name      string    `gorm:"index;size:255;unique"`
	CreatedAt time.Time `gorm:"default:null"`
	UpdatedAt time.Time `gorm:"default:null"`
}
