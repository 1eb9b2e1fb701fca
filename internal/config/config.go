// Package config provides configuration management for the furlong services.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app" validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database" validate:"required"`
	ClickHouse  ClickHouseConfig  `mapstructure:"clickhouse"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	FeatureFeed FeedConfig        `mapstructure:"feature_feed" validate:"required"`
	PriceStream PriceStreamConfig `mapstructure:"price_stream"`
	Notifier    NotifierConfig    `mapstructure:"notifier" validate:"required"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler" validate:"required"`
	Metrics     MetricsConfig     `mapstructure:"metrics" validate:"required"`
	Health      HealthConfig      `mapstructure:"health" validate:"required"`
	Secrets     SecretsConfig     `mapstructure:"secrets"`
	Engine      EngineConfig      `mapstructure:"engine" validate:"required"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents the Postgres connection holding the artifact registry
type DatabaseConfig struct {
	Host           string `mapstructure:"host" validate:"required"`
	Port           int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name           string `mapstructure:"name" validate:"required"`
	User           string `mapstructure:"user" validate:"required"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MinConnections int    `mapstructure:"min_connections" validate:"gte=0"`
}

// ClickHouseConfig represents the append-only backtest history store
type ClickHouseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port     int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Table    string `mapstructure:"table"`
}

// RedisConfig represents the market price store
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db" validate:"gte=0"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ArchiveConfig represents the S3 bucket superseded artifacts are archived to
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bucket  string `mapstructure:"bucket" validate:"required_if=Enabled true"`
	Prefix  string `mapstructure:"prefix"`
	Region  string `mapstructure:"region"`
}

// FeedConfig represents the HTTP feature vector and outcome feed
type FeedConfig struct {
	BaseURL        string  `mapstructure:"base_url" validate:"required,url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	MaxRetries     int     `mapstructure:"max_retries" validate:"gte=0"`
	RateLimit      float64 `mapstructure:"rate_limit" validate:"required,gt=0"`
	APIKey         string  `mapstructure:"api_key"`
}

// PriceStreamConfig represents the websocket live price feed
type PriceStreamConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url" validate:"required_if=Enabled true"`
	TTLSeconds int    `mapstructure:"ttl_seconds" validate:"omitempty,gt=0"`
}

// NotifierConfig represents the outbound notification transports
type NotifierConfig struct {
	Transports []string       `mapstructure:"transports" validate:"required,min=1,dive,transport"`
	NATS       NATSConfig     `mapstructure:"nats"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
}

// NATSConfig represents NATS publishing settings
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// KafkaConfig represents Kafka publishing settings
type KafkaConfig struct {
	Brokers          []string `mapstructure:"brokers"`
	PredictionsTopic string   `mapstructure:"predictions_topic"`
	BacktestsTopic   string   `mapstructure:"backtests_topic"`
}

// TelegramConfig represents the operator chat channel
type TelegramConfig struct {
	BotToken   string `mapstructure:"bot_token"`
	ChatID     string `mapstructure:"chat_id"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// SchedulerConfig represents retrain scheduling
type SchedulerConfig struct {
	RetrainCron            string `mapstructure:"retrain_cron" validate:"required"`
	JobTimeoutMinutes      int    `mapstructure:"job_timeout_minutes" validate:"required,gt=0"`
	PredictIntervalSeconds int    `mapstructure:"predict_interval_seconds" validate:"gte=0"`
	SettleIntervalSeconds  int    `mapstructure:"settle_interval_seconds" validate:"gte=0"`
	LookaheadMinutes       int    `mapstructure:"lookahead_minutes" validate:"gte=0"`
	ReloadIntervalSeconds  int    `mapstructure:"reload_interval_seconds" validate:"gte=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// HealthConfig represents the HTTP and gRPC health endpoints
type HealthConfig struct {
	Port     int `mapstructure:"port" validate:"required,min=1,max=65535"`
	GRPCPort int `mapstructure:"grpc_port" validate:"omitempty,min=1,max=65535"`
}

// SecretsConfig selects the AWS Secrets Manager overlay
type SecretsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region" validate:"required_if=Enabled true"`
	Name    string `mapstructure:"name" validate:"required_if=Enabled true"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// PollIntervals returns the predict and settle intervals and the upcoming
// race lookahead, with defaults of 60s, 300s and 30m
func (c *Config) PollIntervals() (predict, settle, lookahead time.Duration) {
	predict = secondsOr(c.Scheduler.PredictIntervalSeconds, 60)
	settle = secondsOr(c.Scheduler.SettleIntervalSeconds, 300)
	lookahead = secondsOr(c.Scheduler.LookaheadMinutes*60, 1800)
	return predict, settle, lookahead
}

// ReloadInterval returns how often the predictor re-reads stored champions
func (c *Config) ReloadInterval() time.Duration {
	return secondsOr(c.Scheduler.ReloadIntervalSeconds, 60)
}

func secondsOr(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

// JobTimeout returns the retrain job timeout
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Scheduler.JobTimeoutMinutes) * time.Minute
}
