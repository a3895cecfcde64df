package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the server needs at startup. Values come
// from defaults, then an optional YAML file, then environment
// overrides, in that order.
type Config struct {
	ListenAddr string
	RedisAddr  string
	DataDir    string
	JWTSecret  string
	TokenTTL   time.Duration
	MaxConns   int
}

// fileConfig is the YAML shape; durations are strings like "24h".
type fileConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	RedisAddr  string `yaml:"redis_addr"`
	DataDir    string `yaml:"data_dir"`
	JWTSecret  string `yaml:"jwt_secret"`
	TokenTTL   string `yaml:"token_ttl"`
	MaxConns   int    `yaml:"max_conns"`
}

// Default returns the zero-config setup: memory store, dev signing
// secret, day-long tokens.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		JWTSecret:  "dev-secret-change-me",
		TokenTTL:   24 * time.Hour,
	}
}

// Load builds the config from defaults, the YAML file at path (if
// non-empty), and environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := cfg.applyFile(fc); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(fc fileConfig) error {
	if fc.ListenAddr != "" {
		c.ListenAddr = fc.ListenAddr
	}
	if fc.RedisAddr != "" {
		c.RedisAddr = fc.RedisAddr
	}
	if fc.DataDir != "" {
		c.DataDir = fc.DataDir
	}
	if fc.JWTSecret != "" {
		c.JWTSecret = fc.JWTSecret
	}
	if fc.TokenTTL != "" {
		ttl, err := time.ParseDuration(fc.TokenTTL)
		if err != nil {
			return fmt.Errorf("config: invalid token_ttl %q: %w", fc.TokenTTL, err)
		}
		c.TokenTTL = ttl
	}
	if fc.MaxConns != 0 {
		c.MaxConns = fc.MaxConns
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid TOKEN_TTL %q: %w", v, err)
		}
		c.TokenTTL = ttl
	}
	if v := os.Getenv("MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid MAX_CONNS %q: %w", v, err)
		}
		c.MaxConns = n
	}
	return nil
}
