package config

import (
	"fmt"

	"github.com/go-ini/ini"
)

type MessagingConfig struct {
	Connection string `json:"connection"`
	Exchange   string `json:"exchange"`
	Enabled    bool   `json:"enabled"`
}

func NewMessagingConfig(c *ini.Section) MessagingConfig {
	host := c.Key("host").Value()
	user := c.Key("user").MustString("guest")
	passwd := c.Key("passwd").MustString("guest")
	connection := ""
	if host != "" {
		connection = fmt.Sprintf("amqp://%s:%s@%s/", user, passwd, host)
	}
	return MessagingConfig{
		Connection: connection,
		Exchange:   c.Key("exchange").MustString("conductor.notifications"),
		Enabled:    host != "",
	}
}
