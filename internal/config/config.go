package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	DB     DBConfig     `yaml:"db"`
	Log    LogConfig    `yaml:"log"`
	Sync   SyncConfig   `yaml:"sync"`
	Kafka  KafkaConfig  `yaml:"kafka"`
}

type ServerConfig struct {
	Host string `yaml:"host" envconfig:"TALLY_SERVER_HOST"`
	Port int    `yaml:"port" envconfig:"TALLY_SERVER_PORT"`
}

// Addr is the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DBConfig struct {
	Path string `yaml:"path" envconfig:"TALLY_DB_PATH"`
}

type LogConfig struct {
	Level string `yaml:"level" envconfig:"TALLY_LOG_LEVEL"`
	// Path directs logs to a size-capped file instead of stdout.
	Path string `yaml:"path" envconfig:"TALLY_LOG_PATH"`
}

// SyncConfig tunes the broadcast hub.
type SyncConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer" envconfig:"TALLY_SYNC_SUBSCRIBER_BUFFER"`
}

// KafkaConfig enables the cross-instance event relay. Single-instance
// deployments leave it disabled and the in-process hub serves all
// subscribers.
type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled" envconfig:"TALLY_KAFKA_ENABLED"`
	Brokers  []string `yaml:"brokers" envconfig:"TALLY_KAFKA_BROKERS"`
	Topic    string   `yaml:"topic" envconfig:"TALLY_KAFKA_TOPIC"`
	GroupID  string   `yaml:"group_id" envconfig:"TALLY_KAFKA_GROUP_ID"`
	Instance string   `yaml:"instance" envconfig:"TALLY_KAFKA_INSTANCE"`
}

// Load reads configuration in three layers: defaults, an optional YAML file
// (the argument, or TALLY_CONFIG_PATH), then TALLY_-prefixed environment
// variables on top.
func Load(path string) (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "tally.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Sync: SyncConfig{
			SubscriberBuffer: 64,
		},
		Kafka: KafkaConfig{
			Topic:   "tally.counter-events",
			GroupID: "tallyd",
		},
	}

	if path == "" {
		path = os.Getenv("TALLY_CONFIG_PATH")
	}
	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	// Tags carry the full variable names, so no prefix here.
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.DB.Path == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Sync.SubscriberBuffer < 1 {
		return fmt.Errorf("sync subscriber buffer must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled without brokers")
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
