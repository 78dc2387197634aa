package config

import "time"

// StorageType selects the run store backend.
type StorageType string

const (
	StorageMemory StorageType = "memory"
	StorageSQLite StorageType = "sqlite"
	StorageRedis  StorageType = "redis"
)

// SMTPConfig holds the outbound mail settings. An empty Host disables real
// delivery; notifications are logged instead.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Config is the full daemon configuration, populated by cobra/viper flags
// and an optional config file.
type Config struct {
	StorageType StorageType
	SQLitePath  string
	RedisAddr   string
	Namespace   string

	// MongoURL points at the application content database. Empty runs the
	// daemon against an in-memory content store, useful for development.
	MongoURL string
	MongoDB  string

	HTTPPort int

	Concurrency  int
	PollInterval time.Duration
	LeaseTTL     time.Duration
	Retention    time.Duration

	StoryTTL      time.Duration
	ReminderDelay time.Duration
	DigestWindow  time.Duration

	SMTP SMTPConfig
}
