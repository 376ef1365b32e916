package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"CALLDECK_SERVER_"`
	Stream   StreamConfig   `yaml:"stream" envPrefix:"CALLDECK_STREAM_"`
	Verify   VerifyConfig   `yaml:"verify" envPrefix:"CALLDECK_VERIFY_"`
	Sessions SessionsConfig `yaml:"sessions" envPrefix:"CALLDECK_SESSIONS_"`
	Privacy  PrivacyConfig  `yaml:"privacy"`
}

type ServerConfig struct {
	Host             string        `yaml:"host" env:"HOST"`
	Port             int           `yaml:"port" env:"PORT"`
	AuthToken        string        `yaml:"auth_token" env:"AUTH_TOKEN"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" env:"SNAPSHOT_INTERVAL"`
}

type StreamConfig struct {
	URL            string        `yaml:"url" env:"URL"`
	Token          string        `yaml:"token" env:"TOKEN"`
	BackoffBase    time.Duration `yaml:"backoff_base" env:"BACKOFF_BASE"`
	BackoffCeiling time.Duration `yaml:"backoff_ceiling" env:"BACKOFF_CEILING"`
	MaxAttempts    int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	PingInterval   time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
	PongTimeout    time.Duration `yaml:"pong_timeout" env:"PONG_TIMEOUT"`
}

type VerifyConfig struct {
	URL     string        `yaml:"url" env:"URL"`
	Token   string        `yaml:"token" env:"TOKEN"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type SessionsConfig struct {
	// EvictionGrace is how long an ended session stays queryable before
	// it is removed from the registry.
	EvictionGrace time.Duration `yaml:"eviction_grace" env:"EVICTION_GRACE"`
}

type PrivacyConfig struct {
	MaskNumbers   bool `yaml:"mask_numbers"`
	MaskCallerRef bool `yaml:"mask_caller_ref"`
	DropScreenPop bool `yaml:"drop_screen_pop"`
}

// Load reads the yaml config, applying defaults first and CALLDECK_*
// environment variables last. A missing file is not an error; defaults
// plus environment are enough to run.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			SnapshotInterval: 5 * time.Second,
		},
		Stream: StreamConfig{
			URL:            "ws://localhost:9090/events",
			BackoffBase:    time.Second,
			BackoffCeiling: 10 * time.Second,
			MaxAttempts:    5,
			PingInterval:   30 * time.Second,
			PongTimeout:    60 * time.Second,
		},
		Verify: VerifyConfig{
			URL:     "http://localhost:9091",
			Timeout: 5 * time.Second,
		},
		Sessions: SessionsConfig{
			EvictionGrace: 30 * time.Second,
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
