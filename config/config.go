package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
// Values come from the YAML file first; environment variables override them.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	RFID       RFIDConfig       `yaml:"rfid"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port             int           `yaml:"port" env:"PORT"`
	RateLimitPerSec  float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst   int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds  int           `yaml:"cache_ttl_seconds"`
	CacheTTL         time.Duration `yaml:"-"`
	AllowedOrigins   []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	OperatorIDHeader string        `yaml:"operator_id_header"`
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Mode string `yaml:"mode" env:"LOG_MODE"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver" env:"DB_DRIVER"`
	DSN                    string `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// RFIDConfig holds the reader ingestion settings.
type RFIDConfig struct {
	// APIKey is the shared secret readers send with every batch.
	APIKey string `yaml:"api_key" env:"RFID_API_KEY"`
	// SystemActorID is recorded as the performer of pipeline-driven status changes.
	SystemActorID    string `yaml:"system_actor_id"`
	AlertUnknownTags bool   `yaml:"alert_unknown_tags"`
	AlertMovements   bool   `yaml:"alert_movements"`
}

// MQTTConfig configures the MQTT reader transport.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled" env:"MQTT_ENABLED"`
	Broker   string `yaml:"broker" env:"MQTT_BROKER"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
	Username string `yaml:"username" env:"MQTT_USERNAME"`
	Password string `yaml:"-" env:"MQTT_PASSWORD"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" env:"VAPID_PUBLIC_KEY"`
	PrivateKey string `yaml:"vapid_private_key" env:"VAPID_PRIVATE_KEY"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the alert worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds < 0 {
		cfg.Server.CacheTTLSeconds = 0
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	if cfg.Server.OperatorIDHeader == "" {
		cfg.Server.OperatorIDHeader = "X-User-ID"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.RFID.SystemActorID == "" {
		cfg.RFID.SystemActorID = "system:rfid-pipeline"
	}

	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "rfid/readers/+/reads"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "rfidd"
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		log.Printf("mqtt.qos %d is out of range; defaulting to 1", cfg.MQTT.QoS)
		cfg.MQTT.QoS = 1
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}
}
