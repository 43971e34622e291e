package config

import (
	"time"

	"github.com/go-ini/ini"
)

type SchedulerConfig struct {
	Interval time.Duration `json:"interval"`
	Enabled  bool          `json:"enabled"`
}

func NewDefaultSchedulerConfig(c *ini.Section) SchedulerConfig {
	return SchedulerConfig{
		Interval: c.Key("interval").MustDuration(30 * time.Second),
		Enabled:  c.Key("enabled").MustBool(true),
	}
}
