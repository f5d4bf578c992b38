package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	FilterModeStoreAll    = "store_all"
	FilterModeMatchedOnly = "matched_only"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	HTTP       HTTPConfig       `yaml:"http"`
	Collection CollectionConfig `yaml:"collection"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Registry   RegistryConfig   `yaml:"registry"`
	Lock       LockConfig       `yaml:"lock"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	LogLevel   string           `yaml:"log_level"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RabbitMQConfig is optional; an empty URL disables item publishing.
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type CollectionConfig struct {
	RunBudget      time.Duration `yaml:"run_budget"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	FilterMode     string        `yaml:"filter_mode"`
	// CancelInFlight abandons fetches still running when the budget expires.
	// When false they are detached from the budget and allowed to finish.
	CancelInFlight *bool         `yaml:"cancel_in_flight"`
	// PersistGrace is how long items fetched near the end of the run may
	// still be written after the budget expires. Must be shorter than lock.grace.
	PersistGrace   time.Duration `yaml:"persist_grace"`
	UserAgent      string        `yaml:"user_agent"`
	Retry          RetryConfig   `yaml:"retry"`
}

func (c CollectionConfig) CancelsInFlight() bool {
	return c.CancelInFlight == nil || *c.CancelInFlight
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type ScheduleConfig struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

type RegistryConfig struct {
	SeedFile     string        `yaml:"seed_file"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	CacheRefresh string        `yaml:"cache_refresh"`
}

type LockConfig struct {
	Key   string        `yaml:"key"`
	Grace time.Duration `yaml:"grace"`
}

// TTL is the lease length for one run: the budget plus a grace period for notification.
func (l LockConfig) TTL(budget time.Duration) time.Duration {
	return budget + l.Grace
}

type NotifierConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment references in data, decodes it and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "rss_collector"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "collected_items"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "newsletter_items"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Collection.RunBudget == 0 {
		c.Collection.RunBudget = 8 * time.Minute
	}
	if c.Collection.FetchTimeout == 0 {
		c.Collection.FetchTimeout = 20 * time.Second
	}
	if c.Collection.MaxConcurrency == 0 {
		c.Collection.MaxConcurrency = 8
	}
	if c.Collection.FilterMode == "" {
		c.Collection.FilterMode = FilterModeStoreAll
	}
	if c.Collection.PersistGrace == 0 {
		c.Collection.PersistGrace = 30 * time.Second
	}
	if c.Collection.UserAgent == "" {
		c.Collection.UserAgent = "RSSCollector/1.0"
	}
	if c.Collection.Retry.MaxAttempts == 0 {
		c.Collection.Retry.MaxAttempts = 2
	}
	if c.Collection.Retry.InitialBackoff == 0 {
		c.Collection.Retry.InitialBackoff = 1 * time.Second
	}
	if c.Collection.Retry.MaxBackoff == 0 {
		c.Collection.Retry.MaxBackoff = 10 * time.Second
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "0 6 * * *"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Asia/Seoul"
	}
	if c.Registry.CacheTTL == 0 {
		c.Registry.CacheTTL = 30 * time.Minute
	}
	if c.Registry.CacheRefresh == "" {
		c.Registry.CacheRefresh = "@every 10m"
	}
	if c.Lock.Key == "" {
		c.Lock.Key = "rss_collector:run_lock"
	}
	if c.Lock.Grace == 0 {
		c.Lock.Grace = 1 * time.Minute
	}
	if c.Notifier.Timeout == 0 {
		c.Notifier.Timeout = 10 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Collection.FilterMode {
	case FilterModeStoreAll, FilterModeMatchedOnly:
	default:
		errs = append(errs, fmt.Errorf("collection.filter_mode must be %q or %q, got %q",
			FilterModeStoreAll, FilterModeMatchedOnly, c.Collection.FilterMode))
	}
	if c.Collection.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("collection.max_concurrency must be positive, got %d", c.Collection.MaxConcurrency))
	}
	if c.Collection.RunBudget < 0 || c.Collection.FetchTimeout < 0 {
		errs = append(errs, errors.New("collection durations must not be negative"))
	}
	if c.Collection.PersistGrace >= c.Lock.Grace {
		errs = append(errs, fmt.Errorf("collection.persist_grace (%s) must be shorter than lock.grace (%s)",
			c.Collection.PersistGrace, c.Lock.Grace))
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
	}

	return errors.Join(errs...)
}
