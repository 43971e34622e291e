package config

import (
	"fmt"

	"github.com/go-ini/ini"
)

type DatabaseConfig struct {
	Connection  string `json:"connection"`
	Debug       bool   `json:"debug"`
	PoolSize    int    `json:"pool_size"`
	IdleTimeout int    `json:"idle_timeout"`
}

func NewDefaultDatabaseConfig(c *ini.Section) DatabaseConfig {
	debug, _ := c.Key("debug").Bool()
	poolSize, _ := c.Key("pool_size").Int()
	idleTimeout, _ := c.Key("idle_timeout").Int()

	connection := c.Key("connection").String()
	if connection == "" {
		host := c.Key("host").String()
		if host == "" {
			connection = "sqlite:///var/lib/conductor/conductor.db"
		} else {
			port := c.Key("port").MustString("3306")
			user := c.Key("user").Value()
			passwd := c.Key("passwd").Value()
			connection = fmt.Sprintf("mysql://%s:%s@%s:%s/conductor?charset=utf8mb4&parseTime=True&loc=UTC", user, passwd, host, port)
		}
	}
	return DatabaseConfig{
		Connection:  connection,
		Debug:       debug,
		PoolSize:    poolSize,
		IdleTimeout: idleTimeout,
	}
}
