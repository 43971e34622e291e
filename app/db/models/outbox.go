package models

import (
	"time"

	"conductor/pkg/gormx"
)

const (
	IntentNotification = "NOTIFICATION"
	IntentWebhook      = "WEBHOOK"
	IntentAnalytics    = "ANALYTICS"
	IntentGuestCache   = "GUEST_CACHE"

	IntentPending = "PENDING"
	IntentSent    = "SENT"
	IntentFailed  = "FAILED"
)

// OutboxIntent is a side effect recorded inside an engine transaction and
// delivered after commit.
type OutboxIntent struct {
	ID         string            `gorm:"primaryKey;size:255;"`
	Kind       string            `gorm:"size:32;index"`
	Event      string            `gorm:"size:64"`
	AccountID  string            `gorm:"size:255"`
	WorkflowID string            `gorm:"size:255;index"`
	Recipients gormx.StringSlice `gorm:"type:text"`
	Payload    gormx.MapJson     `gorm:"type:text"`
	Status     string            `gorm:"size:16;index"`
	Attempts   int
	LastError  string `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type WebhookSubscription struct {
	ID        string `gorm:"primaryKey;size:255;"`
	AccountID string `gorm:"size:255;index"`
	Event     string `gorm:"size:64;index"`
	URL       string `gorm:"size:1024"`
	Active    bool
}
