package models

import (
	"time"

	"conductor/pkg/gormx"
)

type Workflow struct {
	ID         string `gorm:"primaryKey;size:255;"`
	AccountID  string `gorm:"size:255;index"`
	TemplateID string `gorm:"size:255;index"`
	Name       string `gorm:"size:255"`
	// RUNNING, DELAYED or DONE
	Status   string `gorm:"size:32;index"`
	IsUrgent bool
	// compare-and-swap counter, bumped by every engine entry point
	Version int64 `gorm:"default:0"`

	Members gormx.StringSlice `gorm:"type:text"`
	// set when the workflow was started from a task of another workflow
	AncestorTaskID string          `gorm:"size:255;index"`
	StarterID      string          `gorm:"size:255"`
	Kickoff        gormx.StringMap `gorm:"type:text"`

	CreatedAt     time.Time
	UpdatedAt     time.Time
	DateCompleted *time.Time
	DueDate       *time.Time
}

// Event is an append-only history record of a workflow or task transition.
type Event struct {
	ID         string        `gorm:"primaryKey;size:255;"`
	WorkflowID string        `gorm:"size:255;index"`
	TaskID     string        `gorm:"size:255;index"`
	Type       string        `gorm:"size:64;index"`
	UserID     string        `gorm:"size:255"`
	DelayID    string        `gorm:"size:255"`
	Text       string        `gorm:"type:text"`
	Payload    gormx.MapJson `gorm:"type:text"`
	CreatedAt  time.Time
}
