package models

import (
	"time"

	"conductor/pkg/gormx"
)

type Task struct {
	ID         string `gorm:"primaryKey;size:255;"`
	WorkflowID string `gorm:"size:255;index"`
	// stable identifier inside the template
	APIName             string `gorm:"size:255;index"`
	Number              int
	Name                string            `gorm:"size:255"`
	Description         string            `gorm:"type:text"`
	DescriptionRendered string            `gorm:"type:text"`
	Parents             gormx.StringSlice `gorm:"type:text"`
	// PENDING, ACTIVE, DELAYED, SKIPPED or COMPLETED
	Status string `gorm:"size:32;index"`
	// explicit revert target api-name, empty means the direct parents
	RevertTask             string `gorm:"size:255"`
	RequireCompletionByAll bool

	DateStarted      *time.Time
	DateFirstStarted *time.Time
	DateCompleted    *time.Time
	DueDate          *time.Time
	DueInSeconds     int64
	IsUrgent         bool

	ChecklistsTotal    int
	ChecklistsMarked   int
	StarterIsPerformer bool
	Output             gormx.StringMap `gorm:"type:text"`
}

const (
	PerformerUser  = "user"
	PerformerGroup = "group"
	PerformerGuest = "guest"
)

type Performer struct {
	ID     string `gorm:"primaryKey;size:255;"`
	TaskID string `gorm:"size:255;index"`
	// user, group or guest
	Type             string `gorm:"size:16"`
	UserID           string `gorm:"size:255;index"`
	GroupID          string `gorm:"size:255;index"`
	IsCompleted      bool
	DateCompleted    *time.Time
	DirectlyDeleted  bool
	NotifyOnComplete bool
}

type GroupMember struct {
	GroupID string `gorm:"primaryKey;size:255;"`
	UserID  string `gorm:"primaryKey;size:255;"`
}

const (
	DelayOriginTemplate = "TEMPLATE"
	DelayOriginForce    = "FORCE"
)

type Delay struct {
	ID     string `gorm:"primaryKey;size:255;"`
	TaskID string `gorm:"size:255;index"`
	// seconds
	Duration         int64
	StartDate        *time.Time
	EstimatedEndDate *time.Time
	EndDate          *time.Time
	Origin           string `gorm:"size:16"`
}

const (
	ConditionStartTask   = "START_TASK"
	ConditionSkipTask    = "SKIP_TASK"
	ConditionEndWorkflow = "END_WORKFLOW"
)

type Condition struct {
	ID       string `gorm:"primaryKey;size:255;"`
	TaskID   string `gorm:"size:255;index"`
	APIName  string `gorm:"size:255"`
	Position int
	Action   string `gorm:"size:32"`
	// all or any
	Operator string            `gorm:"size:8"`
	Rules    gormx.StringSlice `gorm:"type:text"`
}
