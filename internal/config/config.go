package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MesaForge/gastrolytics/internal/insights"
)

type Config struct {
	Server    ServerConfig        `yaml:"server"`
	Database  DatabaseConfig      `yaml:"database"`
	Cache     CacheConfig         `yaml:"cache"`
	RateLimit RateLimitConfig     `yaml:"rate_limit"`
	Insights  insights.Thresholds `yaml:"insights"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" default:"8080"`
	LogLevel     string        `yaml:"log_level" default:"info"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	Database string `yaml:"database" default:"gastrolytics"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode" default:"disable"`
	PoolSize int    `yaml:"pool_size" default:"10"`
}

type CacheConfig struct {
	// RedisAddr switches the cache backend to Redis when set.
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl" default:"5m"`
	MemoryEntries int           `yaml:"memory_entries" default:"1024"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" default:"20"`
	Burst             int     `yaml:"burst" default:"40"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			LogLevel:     "info",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "gastrolytics",
			User:     "postgres",
			SSLMode:  "disable",
			PoolSize: 10,
		},
		Cache: CacheConfig{
			TTL:           5 * time.Minute,
			MemoryEntries: 1024,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Insights: insights.DefaultThresholds(),
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error: the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
