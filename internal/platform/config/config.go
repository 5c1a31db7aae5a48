package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig             `mapstructure:"server"`
	Database DatabaseConfig           `mapstructure:"database"`
	Redis    RedisConfig              `mapstructure:"redis"`
	Kafka    KafkaConfig              `mapstructure:"kafka"`
	JWT      JWTConfig                `mapstructure:"jwt"`
	Security SecurityConfig           `mapstructure:"security"`
	Webhooks WebhooksConfig           `mapstructure:"webhooks"`
	Rules    RulesConfig              `mapstructure:"rules"`
	Channels map[string]ChannelConfig `mapstructure:"channels"`
	Logging  LoggingConfig            `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// EventsPerMinute caps event ingestion per organization; 0 disables it.
	EventsPerMinute int `mapstructure:"events_per_minute"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type RedisConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Addrs      []string `mapstructure:"addrs"`
	MasterName string   `mapstructure:"master_name"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	DB         int      `mapstructure:"db"`
	KeyPrefix  string   `mapstructure:"key_prefix"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// SecurityConfig holds the master key endpoint secrets are encrypted with.
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

type WebhooksConfig struct {
	WorkerCount           int           `mapstructure:"worker_count"`
	QueueSize             int           `mapstructure:"queue_size"`
	BaseBackoff           time.Duration `mapstructure:"base_backoff"`
	MaxBackoff            time.Duration `mapstructure:"max_backoff"`
	DefaultRetryCount     int           `mapstructure:"default_retry_count"`
	DefaultTimeoutSeconds int           `mapstructure:"default_timeout_seconds"`
	UserAgent             string        `mapstructure:"user_agent"`
	RecoveryInterval      time.Duration `mapstructure:"recovery_interval"`
	HistoryRetention      time.Duration `mapstructure:"history_retention"`
}

type RulesConfig struct {
	CounterStore     string        `mapstructure:"counter_store"`
	SuppressionStore string        `mapstructure:"suppression_store"`
	CounterIdleTTL   time.Duration `mapstructure:"counter_idle_ttl"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
}

// ChannelConfig describes an outbound notification channel (chat room,
// paging integration) that notify_channel and escalate actions target.
type ChannelConfig struct {
	Kind string `mapstructure:"kind"`
	URL  string `mapstructure:"url"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.events_per_minute", 6000)

	v.SetDefault("database.path", "data/notifyd.db")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("redis.key_prefix", "notifyd")

	v.SetDefault("kafka.topic", "domain-events")
	v.SetDefault("kafka.group_id", "notifyd")

	v.SetDefault("jwt.issuer", "notifyd")

	v.SetDefault("webhooks.worker_count", 8)
	v.SetDefault("webhooks.queue_size", 1024)
	v.SetDefault("webhooks.base_backoff", 30*time.Second)
	v.SetDefault("webhooks.max_backoff", 15*time.Minute)
	v.SetDefault("webhooks.default_retry_count", 3)
	v.SetDefault("webhooks.default_timeout_seconds", 10)
	v.SetDefault("webhooks.user_agent", "notifyd-webhooks/1.0")
	v.SetDefault("webhooks.recovery_interval", time.Minute)

	v.SetDefault("rules.counter_store", "memory")
	v.SetDefault("rules.suppression_store", "memory")
	v.SetDefault("rules.counter_idle_ttl", 24*time.Hour)
	v.SetDefault("rules.sweep_interval", 10*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if len(c.Security.EncryptionKey) < 32 {
		return errors.New("security.encryption_key must be at least 32 characters")
	}
	if c.Webhooks.WorkerCount < 1 {
		return errors.New("webhooks.worker_count must be at least 1")
	}
	if c.Webhooks.BaseBackoff <= 0 || c.Webhooks.MaxBackoff < c.Webhooks.BaseBackoff {
		return errors.New("webhooks.base_backoff must be positive and not exceed webhooks.max_backoff")
	}
	if c.Webhooks.DefaultRetryCount < 0 || c.Webhooks.DefaultRetryCount > 10 {
		return errors.New("webhooks.default_retry_count must be between 0 and 10")
	}
	if c.Webhooks.DefaultTimeoutSeconds < 5 || c.Webhooks.DefaultTimeoutSeconds > 120 {
		return errors.New("webhooks.default_timeout_seconds must be between 5 and 120")
	}

	for _, store := range []string{c.Rules.CounterStore, c.Rules.SuppressionStore} {
		switch store {
		case "memory":
		case "redis":
			if !c.Redis.Enabled {
				return fmt.Errorf("rules store %q requires redis.enabled", store)
			}
		default:
			return fmt.Errorf("unknown rules store %q", store)
		}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}

	for id, ch := range c.Channels {
		if ch.URL == "" {
			return fmt.Errorf("channels.%s.url is required", id)
		}
	}

	return nil
}
