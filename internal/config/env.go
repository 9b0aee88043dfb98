package config

import (
	"os"
	"strconv"
)

// LoadFromEnv overrides configuration from environment variables.
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("GASTROLYTICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if logLevel := os.Getenv("GASTROLYTICS_LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	// Database settings
	if host := os.Getenv("GASTROLYTICS_DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("GASTROLYTICS_DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Database.Port = p
		}
	}
	if name := os.Getenv("GASTROLYTICS_DB_NAME"); name != "" {
		cfg.Database.Database = name
	}
	if user := os.Getenv("GASTROLYTICS_DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if password := os.Getenv("GASTROLYTICS_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if poolSize := os.Getenv("GASTROLYTICS_DB_POOL_SIZE"); poolSize != "" {
		if n, err := strconv.Atoi(poolSize); err == nil {
			cfg.Database.PoolSize = n
		}
	}

	// Cache settings
	if addr := os.Getenv("GASTROLYTICS_REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}
	if password := os.Getenv("GASTROLYTICS_REDIS_PASSWORD"); password != "" {
		cfg.Cache.RedisPassword = password
	}
}
