package config

import (
	"os"

	"github.com/go-ini/ini"
)

const defaultConfigFile = "/etc/conductor/config.ini"

var (
	LoadFile = loadFile(configFile())
	Config   = NewConfiguration(LoadFile)
)

type Configuration struct {
	API       APIConfig       `json:"api"`
	Database  DatabaseConfig  `json:"database"`
	Outbox    OutboxConfig    `json:"outbox"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Messaging MessagingConfig `json:"messaging"`
	Webhook   WebhookConfig   `json:"webhook"`
	Redis     RedisConfig     `json:"redis"`
	LOG       LogConfig       `json:"log"`
}

func configFile() string {
	if path := os.Getenv("CONDUCTOR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigFile
}

// loadFile never fails on a missing file, every section has defaults.
func loadFile(path string) *ini.File {
	f, err := ini.LooseLoad(path)
	if err != nil {
		return ini.Empty()
	}
	return f
}

func NewConfiguration(f *ini.File) Configuration {
	return Configuration{
		API:       NewDefaultAPIConfig(f.Section("api")),
		Database:  NewDefaultDatabaseConfig(f.Section("db")),
		Outbox:    NewDefaultOutboxConfig(f.Section("outbox")),
		Scheduler: NewDefaultSchedulerConfig(f.Section("scheduler")),
		Messaging: NewMessagingConfig(f.Section("rabbitMQ")),
		Webhook:   NewWebhookConfig(f.Section("webhook")),
		Redis:     NewRedisConfig(f.Section("redis")),
		LOG:       NewDefaultLogConfig(f.Section("log")),
	}
}

// Initialize reloads the configuration from the given file.
func Initialize(path string) error {
	if path == "" {
		return nil
	}
	f, err := ini.Load(path)
	if err != nil {
		return err
	}
	LoadFile = f
	Config = NewConfiguration(f)
	return nil
}
