package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment    string        `envconfig:"APP_ENV" default:"development"`
	Port           string        `envconfig:"PORT" default:"3000"`
	MongoURI       string        `envconfig:"MONGO_URI" required:"true"`
	Database       string        `envconfig:"DB" default:"estate"`
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASS"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL       time.Duration `envconfig:"CACHE_TTL" default:"10m"`
	JWTSecret      string        `envconfig:"JWT_SECRET" required:"true"`
	EncryptionKey  string        `envconfig:"ENCRYPTION_KEY"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173"`
	AuthRatePerMin int           `envconfig:"AUTH_RATE_PER_MIN" default:"20"`
}

// Load reads the configuration from the environment. Call godotenv first if
// values should come from a .env file.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	if strings.TrimSpace(cfg.MongoURI) == "" {
		return Config{}, fmt.Errorf("config: MONGO_URI is required")
	}
	if len(strings.TrimSpace(cfg.JWTSecret)) < 16 {
		return Config{}, fmt.Errorf("config: JWT_SECRET must be at least 16 characters")
	}
	if cfg.AuthRatePerMin <= 0 {
		return Config{}, fmt.Errorf("config: AUTH_RATE_PER_MIN must be positive, got %d", cfg.AuthRatePerMin)
	}
	return cfg, nil
}

// Address returns the listen address for the HTTP server.
func (c Config) Address() string {
	return ":" + c.Port
}

// IsProduction controls secure cookies and JSON logs.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// CacheEnabled reports whether listing search results should be cached in Redis.
func (c Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}
