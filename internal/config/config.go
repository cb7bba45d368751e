package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for our application
type Config struct {
	DiscordToken    string
	DatabaseDSN     string
	RedisAddr       string
	RedisPassword   string
	SpawnChannelIDs []string
	TZOffsetHours   int
	FlushInterval   time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// .env file is optional, continue with environment variables
	}

	config := &Config{
		DiscordToken:  os.Getenv("DISCORD_TOKEN"),
		DatabaseDSN:   os.Getenv("DATABASE_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		TZOffsetHours: 9,
		FlushInterval: 10 * time.Minute,
	}

	if config.DiscordToken == "" {
		return nil, &ConfigError{Field: "DISCORD_TOKEN", Message: "DISCORD_TOKEN is required"}
	}

	if config.DatabaseDSN == "" {
		return nil, &ConfigError{Field: "DATABASE_DSN", Message: "DATABASE_DSN is required"}
	}

	if config.RedisAddr == "" {
		config.RedisAddr = "localhost:6379"
	}

	if ids := os.Getenv("SPAWN_CHANNEL_IDS"); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				config.SpawnChannelIDs = append(config.SpawnChannelIDs, id)
			}
		}
	}

	if raw := os.Getenv("TZ_OFFSET_HOURS"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < -12 || offset > 14 {
			return nil, &ConfigError{Field: "TZ_OFFSET_HOURS", Message: "TZ_OFFSET_HOURS must be an integer between -12 and 14"}
		}
		config.TZOffsetHours = offset
	}

	if raw := os.Getenv("FLUSH_INTERVAL_MINUTES"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return nil, &ConfigError{Field: "FLUSH_INTERVAL_MINUTES", Message: "FLUSH_INTERVAL_MINUTES must be a positive integer"}
		}
		config.FlushInterval = time.Duration(minutes) * time.Minute
	}

	return config, nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
