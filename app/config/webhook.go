package config

import (
	"time"

	"github.com/go-ini/ini"
)

type WebhookConfig struct {
	SecretKey string        `json:"secret_key"`
	Timeout   time.Duration `json:"timeout"`
	UserAgent string        `json:"user_agent"`
}

func NewWebhookConfig(c *ini.Section) WebhookConfig {
	return WebhookConfig{
		SecretKey: c.Key("secret_key").Value(),
		Timeout:   c.Key("timeout").MustDuration(10 * time.Second),
		UserAgent: c.Key("user_agent").MustString("conductor-webhooks/1.0"),
	}
}

type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	Database  int    `json:"database"`
	KeyPrefix string `json:"key_prefix"`
}

func NewRedisConfig(c *ini.Section) RedisConfig {
	return RedisConfig{
		Address:   c.Key("address").Value(),
		Password:  c.Key("password").Value(),
		Database:  c.Key("database").MustInt(0),
		KeyPrefix: c.Key("key_prefix").MustString("guest-token"),
	}
}
