// Package config loads quakesim settings from an optional YAML file and
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/quakesim/internal/artifact"
	"github.com/ZanzyTHEbar/quakesim/internal/database"
	"github.com/ZanzyTHEbar/quakesim/internal/events"
	"github.com/ZanzyTHEbar/quakesim/internal/privacy"
	"github.com/ZanzyTHEbar/quakesim/internal/ratelimit"
	"github.com/ZanzyTHEbar/quakesim/internal/security"
)

// Config is the top-level configuration for the server and CLI.
type Config struct {
	Port     string                  `yaml:"port"`
	DataDir  string                  `yaml:"data_dir"`
	LogLevel string                  `yaml:"log_level"`
	Model    ModelConfig             `yaml:"model"`
	Stream   StreamConfig            `yaml:"stream"`
	Cache    CacheConfig             `yaml:"cache"`
	Redis    ratelimit.RedisConfig   `yaml:"redis"`
	Limits   ratelimit.Config        `yaml:"rate_limit"`
	Database database.Config         `yaml:"database"`
	History  HistoryConfig           `yaml:"history"`
	Summary  SummaryConfig           `yaml:"summary"`
	Events   EventsConfig            `yaml:"events"`
	Security security.SecurityConfig `yaml:"security"`
}

// ModelConfig locates the model bundle.
type ModelConfig struct {
	URI      string          `yaml:"uri"`
	CacheDir string          `yaml:"cache_dir"`
	Artifact artifact.Config `yaml:"artifact"`

	// Required makes a missing or corrupt bundle fatal at startup. It
	// defaults to true whenever URI is set.
	Required *bool `yaml:"required"`

	// Breaker settings for model calls
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// IsRequired reports whether the server must refuse to start without a model.
func (m ModelConfig) IsRequired() bool {
	if m.Required != nil {
		return *m.Required
	}
	return m.URI != ""
}

// StreamConfig controls the progress stream.
type StreamConfig struct {
	StageDelay time.Duration `yaml:"stage_delay"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// HistoryConfig sizes the background history writer and bounds how long
// records are kept.
type HistoryConfig struct {
	Workers   int            `yaml:"workers"`
	QueueSize int            `yaml:"queue_size"`
	Retention privacy.Config `yaml:"retention"`
}

// SummaryConfig controls the cached period statistics.
type SummaryConfig struct {
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// EventsConfig enables event publishing. Empty broker lists disable it.
type EventsConfig struct {
	Kafka events.KafkaConfig `yaml:"kafka"`
	MQTT  events.MQTTConfig  `yaml:"mqtt"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:     "8080",
		DataDir:  "./data",
		LogLevel: "info",
		Model: ModelConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Stream: StreamConfig{StageDelay: 500 * time.Millisecond},
		Cache:  CacheConfig{Enabled: true, TTL: 15 * time.Minute},
		Limits: ratelimit.DefaultConfig(),
		History: HistoryConfig{
			Workers:   2,
			QueueSize: 256,
			Retention: privacy.Config{RetentionDays: 365, Interval: time.Hour},
		},
		Summary: SummaryConfig{
			CacheTTL:        5 * time.Minute,
			RefreshInterval: 5 * time.Minute,
		},
		Events: EventsConfig{
			Kafka: events.KafkaConfig{Topic: events.TopicSimulationCompleted},
		},
		Security: security.DefaultSecurityConfig(),
	}
}

// Load reads the YAML file at path, when it exists, and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Database.DataDir = cfg.DataDir
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.DataDir = getEnvOrDefault("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)

	cfg.Model.URI = getEnvOrDefault("MODEL_URI", cfg.Model.URI)
	cfg.Model.CacheDir = getEnvOrDefault("MODEL_CACHE_DIR", cfg.Model.CacheDir)
	if v := os.Getenv("MODEL_REQUIRED"); v != "" {
		required, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MODEL_REQUIRED: %w", err)
		}
		cfg.Model.Required = &required
	}
	s3 := &cfg.Model.Artifact.S3
	s3.Region = getEnvOrDefault("AWS_REGION", s3.Region)
	s3.Endpoint = getEnvOrDefault("S3_ENDPOINT", s3.Endpoint)
	s3.AccessKey = getEnvOrDefault("AWS_ACCESS_KEY_ID", s3.AccessKey)
	s3.SecretKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", s3.SecretKey)

	var err error
	if cfg.Stream.StageDelay, err = getEnvDuration("STREAM_STAGE_DELAY", cfg.Stream.StageDelay); err != nil {
		return err
	}
	if cfg.Cache.TTL, err = getEnvDuration("CACHE_TTL", cfg.Cache.TTL); err != nil {
		return err
	}

	if v := os.Getenv("HISTORY_RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return fmt.Errorf("HISTORY_RETENTION_DAYS: must be a non-negative integer, got %q", v)
		}
		cfg.History.Retention.RetentionDays = days
	}

	cfg.Redis.Addr = getEnvOrDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Database.URL = getEnvOrDefault("DATABASE_URL", cfg.Database.URL)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Events.Kafka.Brokers = splitList(v)
	}
	cfg.Events.Kafka.Topic = getEnvOrDefault("KAFKA_TOPIC", cfg.Events.Kafka.Topic)
	cfg.Events.MQTT.Broker = getEnvOrDefault("MQTT_BROKER", cfg.Events.MQTT.Broker)
	cfg.Events.MQTT.Topic = getEnvOrDefault("MQTT_TOPIC", cfg.Events.MQTT.Topic)

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Security.AllowedOrigins = splitList(v)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
