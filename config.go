package main

import (
	"io/ioutil"
	"path/filepath"
	"time"

	logging "github.com/op/go-logging"
	yaml "gopkg.in/yaml.v2"
)

// AppConfig struct
type AppConfig struct {
	LogLevel   logging.Level    `yaml:"log_level"`
	Debug      bool             `yaml:"debug"`
	SentryDSN  string           `yaml:"sentry_dsn"`
	Database   DatabaseConfig   `yaml:"database"`
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`

	// SweepInterval is how often due scheduled announcements are
	// picked up, in seconds.
	SweepInterval int `yaml:"sweep_interval"`
}

// DatabaseConfig struct
type DatabaseConfig struct {
	Connection         string `yaml:"connection"`
	Logging            bool   `yaml:"logging"`
	TablePrefix        string `yaml:"table_prefix"`
	MaxOpenConnections int    `yaml:"max_open_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections"`
	ConnectionLifetime int    `yaml:"connection_lifetime"`
}

// HTTPServerConfig struct
type HTTPServerConfig struct {
	Host   string `yaml:"host"`
	Listen string `yaml:"listen"`
}

// TelegramConfig struct
type TelegramConfig struct {
	PollLimit      int `yaml:"poll_limit"`
	PollInterval   int `yaml:"poll_interval"`
	RequestTimeout int `yaml:"request_timeout"`
}

// BroadcastConfig struct
type BroadcastConfig struct {
	BatchSize  int `yaml:"batch_size"`
	BatchDelay int `yaml:"batch_delay"`
}

// LoadConfig read configuration file
func LoadConfig(path string) *AppConfig {
	var err error

	path, err = filepath.Abs(path)
	if err != nil {
		panic(err)
	}

	source, err := ioutil.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var config AppConfig
	if err = yaml.Unmarshal(source, &config); err != nil {
		panic(err)
	}

	config.setDefaults()

	return &config
}

func (c *AppConfig) setDefaults() {
	if c.Telegram.PollLimit == 0 {
		c.Telegram.PollLimit = 100
	}
	if c.Telegram.PollInterval == 0 {
		c.Telegram.PollInterval = 5
	}
	if c.Telegram.RequestTimeout == 0 {
		c.Telegram.RequestTimeout = 10
	}
	if c.Broadcast.BatchSize == 0 {
		c.Broadcast.BatchSize = 25
	}
	if c.Broadcast.BatchDelay == 0 {
		c.Broadcast.BatchDelay = 1
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 60
	}
}

func (c *AppConfig) requestTimeout() time.Duration {
	return time.Duration(c.Telegram.RequestTimeout) * time.Second
}

func (c *AppConfig) batchDelay() time.Duration {
	return time.Duration(c.Broadcast.BatchDelay) * time.Second
}
