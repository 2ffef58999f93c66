// Package config loads the relay configuration: a yaml file for the
// tunable settings, the environment for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Secrets never live in the yaml file. A .env file in the working
// directory is honored for development setups; real environment
// variables win over it.
const (
	EnvSharerSecret     = "RIGSHARE_SHARER_SECRET"
	EnvControllerSecret = "RIGSHARE_CONTROLLER_SECRET"
	EnvRedisPassword    = "RIGSHARE_REDIS_PASSWORD"
)

type Config struct {
	Listen    string `yaml:"listen"`
	OpsListen string `yaml:"ops_listen"`

	// AuthDeadlineSeconds bounds the wait for a session's first frame.
	// 0 disables the deadline.
	AuthDeadlineSeconds int   `yaml:"auth_deadline_seconds"`
	SessionQueue        int   `yaml:"session_queue"`
	EngineQueue         int   `yaml:"engine_queue"`
	MaxFrameBytes       int64 `yaml:"max_frame_bytes"`
	Debug               bool  `yaml:"debug"`

	Redis RedisConfig `yaml:"redis"`

	SharerSecret     string `yaml:"-"`
	ControllerSecret string `yaml:"-"`
}

type RedisConfig struct {
	Addr             string `yaml:"addr"`
	DB               int    `yaml:"db"`
	HeartbeatSeconds int    `yaml:"heartbeat_seconds"`
	Password         string `yaml:"-"`
}

func defaultConfig() *Config {
	return &Config{
		Listen:              ":8080",
		OpsListen:           ":9100",
		AuthDeadlineSeconds: 30,
		SessionQueue:        16,
		EngineQueue:         32,
		MaxFrameBytes:       1 << 20,
		Redis: RedisConfig{
			HeartbeatSeconds: 30,
		},
	}
}

// Load reads the yaml file at path over the defaults and applies the
// environment on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadOrDefault behaves like Load but treats a missing or unset path as
// an empty file.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	cfg := defaultConfig()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	_ = godotenv.Load()
	if v := os.Getenv(EnvSharerSecret); v != "" {
		c.SharerSecret = v
	}
	if v := os.Getenv(EnvControllerSecret); v != "" {
		c.ControllerSecret = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Redis.Password = v
	}
}

// SecretsConfigured reports whether both role secrets are present. The
// relay endpoints must not come up without them.
func (c *Config) SecretsConfigured() bool {
	return c.SharerSecret != "" && c.ControllerSecret != ""
}

// AuthDeadline converts the configured seconds for the session layer,
// where a negative value means no deadline.
func (c *Config) AuthDeadline() time.Duration {
	if c.AuthDeadlineSeconds <= 0 {
		return -1
	}
	return time.Duration(c.AuthDeadlineSeconds) * time.Second
}

func (r *RedisConfig) Heartbeat() time.Duration {
	if r.HeartbeatSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.HeartbeatSeconds) * time.Second
}
