package config

import (
	"time"

	"github.com/go-ini/ini"
)

// OutboxConfig drives the dispatcher that drains side-effect intents.
type OutboxConfig struct {
	Interval    time.Duration `json:"interval"`
	BatchSize   int           `json:"batch_size"`
	MaxAttempts int           `json:"max_attempts"`
}

func NewDefaultOutboxConfig(c *ini.Section) OutboxConfig {
	return OutboxConfig{
		Interval:    c.Key("interval").MustDuration(time.Second),
		BatchSize:   c.Key("batch_size").MustInt(100),
		MaxAttempts: c.Key("max_attempts").MustInt(5),
	}
}
