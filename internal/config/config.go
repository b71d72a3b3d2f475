package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string

	PlaybackCheckInterval time.Duration
	SyncInterval          time.Duration

	RedisHost      string
	RedisPort      string
	RedisPassword  string
	SearchCacheTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	MySQLHost     string
	MySQLPort     string
	MySQLUser     string
	MySQLPassword string
	MySQLDatabase string

	SpotifyClientID     string
	SpotifyClientSecret string

	JWTSecret     string
	AdminAPIKey   string
	AdminTokenTTL time.Duration
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset keys.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:                env("PORT", "3001"),
		Env:                 env("ENV", "development"),
		LogLevel:            env("LOG_LEVEL", "info"),
		AllowedOrigins:      splitList(env("ALLOWED_ORIGINS", "*")),
		RedisHost:           env("REDIS_HOST", ""),
		RedisPort:           env("REDIS_PORT", "6379"),
		RedisPassword:       getenv("REDIS_PASSWORD"),
		KafkaBrokers:        splitList(env("KAFKA_BROKERS", "")),
		KafkaTopic:          env("KAFKA_TOPIC", "listening-room-events"),
		MySQLHost:           env("MYSQL_HOST", ""),
		MySQLPort:           env("MYSQL_PORT", "3306"),
		MySQLUser:           env("MYSQL_USER", "root"),
		MySQLPassword:       getenv("MYSQL_PASSWORD"),
		MySQLDatabase:       env("MYSQL_DATABASE", "listening_room"),
		SpotifyClientID:     env("SPOTIFY_CLIENT_ID", ""),
		SpotifyClientSecret: env("SPOTIFY_CLIENT_SECRET", ""),
		JWTSecret:           env("JWT_SECRET", ""),
		AdminAPIKey:         env("ADMIN_API_KEY", ""),
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"PLAYBACK_CHECK_INTERVAL", time.Second, &cfg.PlaybackCheckInterval},
		{"SYNC_INTERVAL", 5 * time.Second, &cfg.SyncInterval},
		{"SEARCH_CACHE_TTL", 10 * time.Minute, &cfg.SearchCacheTTL},
		{"ADMIN_TOKEN_TTL", time.Hour, &cfg.AdminTokenTTL},
	}
	for _, d := range durations {
		raw := env(d.key, "")
		if raw == "" {
			*d.dst = d.def
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.key)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

func (c *Config) Production() bool {
	return c.Env == "production"
}

func (c *Config) RedisEnabled() bool { return c.RedisHost != "" }

func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

func (c *Config) MySQLEnabled() bool { return c.MySQLHost != "" }

func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
