// Package config loads Mantle's configuration from an optional .env file,
// environment variables (MANTLE_ prefix), and CLI-flag overrides, in
// that increasing order of priority.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/joyautomation/mantle/internal/validate"
)

type Config struct {
	// MQTT connection
	// Required for the daemon (enforced by Validate, not a struct tag, so
	// mantlectl can load DB settings without a broker configured).
	MQTTBrokerURL string `env:"MANTLE_BROKER_URL"`
	MQTTUsername  string `env:"MANTLE_USERNAME"`
	MQTTPassword  string `env:"MANTLE_PASSWORD"`
	MQTTClientID  string `env:"MANTLE_CLIENT_ID" envDefault:"mantle"`
	SharedGroup   string `env:"MANTLE_SHARED_GROUP"` // MQTT 5 shared-subscription group prefix

	// Storage (time-series store)
	DBHost     string `env:"MANTLE_DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"MANTLE_DB_PORT" envDefault:"5432"`
	DBUser     string `env:"MANTLE_DB_USER" envDefault:"mantle"`
	DBPassword string `env:"MANTLE_DB_PASSWORD"`
	DBName     string `env:"MANTLE_DB_NAME" envDefault:"mantle"`
	DBSSL      bool   `env:"MANTLE_DB_SSL" envDefault:"false"`
	DBSSLCA    string `env:"MANTLE_DB_SSL_CA"`
	// Administrative database used to create DBName if it does not yet
	// exist. "postgres" is the stock default; managed offerings that only
	// provide "defaultdb" can override it here.
	DBAdminName string `env:"MANTLE_DB_ADMIN_NAME" envDefault:"postgres"`
	DBPoolMax   int    `env:"MANTLE_DB_POOL_MAX" envDefault:"20"`
	DBPoolMin   int    `env:"MANTLE_DB_POOL_MIN" envDefault:"4"`

	// Hot-value cache (optional — skipped entirely when RedisURL is empty)
	RedisURL        string        `env:"MANTLE_REDIS_URL"`
	RedisMaxRetries int           `env:"MANTLE_REDIS_MAX_RETRIES" envDefault:"5"`
	RedisRetryDelay time.Duration `env:"MANTLE_REDIS_RETRY_DELAY" envDefault:"2s"`
	RedisDrainEvery time.Duration `env:"MANTLE_REDIS_DRAIN_INTERVAL" envDefault:"1s"`

	// History persistence
	HistorianEnabled bool `env:"MANTLE_HISTORIAN_ENABLED" envDefault:"true"`

	// Retention / compression policy. The two compress-after values are
	// not read by storage.Migrate, whose compression policies use fixed
	// 1h (history) and 24h (history_properties) thresholds.
	HistoryCompressAfter           time.Duration `env:"MANTLE_HISTORY_COMPRESS_AFTER" envDefault:"1h"`
	HistoryPropertiesCompressAfter time.Duration `env:"MANTLE_HISTORY_PROPERTIES_COMPRESS_AFTER" envDefault:"24h"`
	HistoryRetention               time.Duration `env:"MANTLE_HISTORY_RETENTION" envDefault:"8760h"` // 1 year; 0 = keep forever

	// HTTP surface (stand-in for the delegated GraphQL transport)
	HTTPAddr     string        `env:"MANTLE_HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"MANTLE_HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"MANTLE_HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"MANTLE_HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthEnabled        bool   `env:"MANTLE_AUTH_ENABLED" envDefault:"true"`
	AuthToken          string `env:"MANTLE_AUTH_TOKEN"`
	AuthTokenGenerated bool   // true when auto-generated (not set from env)
	WriteToken         string `env:"MANTLE_WRITE_TOKEN"` // separate token for write operations; falls back to AuthToken

	RateLimitRPS   float64 `env:"MANTLE_RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"MANTLE_RATE_LIMIT_BURST" envDefault:"40"`
	CORSOrigins    string  `env:"MANTLE_CORS_ORIGINS"` // comma-separated; empty = allow all

	MetricsEnabled bool   `env:"MANTLE_METRICS_ENABLED" envDefault:"true"`
	LogLevel       string `env:"MANTLE_LOG_LEVEL" envDefault:"info"`

	// Alarm engine
	WebhookURL    string `env:"MANTLE_WEBHOOK_URL"`
	WebhookSecret string `env:"MANTLE_WEBHOOK_SECRET"`
	SpaceShortID  string `env:"MANTLE_SPACE_ID"` // identifies this deployment in webhook payloads
}

// Validate checks invariants that can't be expressed as struct tags.
func (c *Config) Validate() error {
	if c.MQTTBrokerURL == "" {
		return fmt.Errorf("MANTLE_BROKER_URL must be set")
	}
	if err := validate.BrokerURL(c.MQTTBrokerURL); err != nil {
		return fmt.Errorf("MANTLE_BROKER_URL: %w", err)
	}
	if err := validate.Host(c.DBHost); err != nil {
		return fmt.Errorf("MANTLE_DB_HOST: %w", err)
	}
	if err := validate.Port(c.DBPort); err != nil {
		return fmt.Errorf("MANTLE_DB_PORT: %w", err)
	}
	if c.DBSSL {
		if err := validate.PEMFile(c.DBSSLCA); err != nil {
			return fmt.Errorf("MANTLE_DB_SSL_CA: %w", err)
		}
	}
	return nil
}

// DatabaseURL builds the pgx connection string from the discrete DB fields.
func (c *Config) DatabaseURL() string {
	sslmode := "disable"
	if c.DBSSL {
		sslmode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, sslmode)
}

// AdminDatabaseURL builds the connection string for the administrative
// database used to create DBName on first run.
func (c *Config) AdminDatabaseURL() string {
	sslmode := "disable"
	if c.DBSSL {
		sslmode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBAdminName, sslmode)
}

// Overrides holds CLI-flag values that take priority over env vars. The
// command-line surface is a thin collaborator that populates this struct
// before calling Load.
type Overrides struct {
	EnvFile     string
	BrokerURL   string
	Username    string
	Password    string
	ClientID    string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSL       *bool
	DBSSLCA     string
	DBAdminName string
	RedisURL    string
	SharedGroup string
	LogLevel    string
}

// Load reads configuration from an optional .env file, environment
// variables, then applies CLI overrides (highest priority).
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	applyOverrides(cfg, overrides)

	if !cfg.AuthEnabled {
		cfg.AuthToken = ""
		cfg.WriteToken = ""
	} else if cfg.AuthToken == "" {
		// Auto-generate so the surface is never accidentally left open;
		// changes every restart unless MANTLE_AUTH_TOKEN is pinned.
		b := make([]byte, 32)
		if _, err := rand.Read(b); err == nil {
			cfg.AuthToken = base64.URLEncoding.EncodeToString(b)
			cfg.AuthTokenGenerated = true
		}
	}

	return cfg, nil
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.BrokerURL != "" {
		cfg.MQTTBrokerURL = o.BrokerURL
	}
	if o.Username != "" {
		cfg.MQTTUsername = o.Username
	}
	if o.Password != "" {
		cfg.MQTTPassword = o.Password
	}
	if o.ClientID != "" {
		cfg.MQTTClientID = o.ClientID
	}
	if o.DBHost != "" {
		cfg.DBHost = o.DBHost
	}
	if o.DBPort != "" {
		cfg.DBPort = o.DBPort
	}
	if o.DBUser != "" {
		cfg.DBUser = o.DBUser
	}
	if o.DBPassword != "" {
		cfg.DBPassword = o.DBPassword
	}
	if o.DBName != "" {
		cfg.DBName = o.DBName
	}
	if o.DBSSL != nil {
		cfg.DBSSL = *o.DBSSL
	}
	if o.DBSSLCA != "" {
		cfg.DBSSLCA = o.DBSSLCA
	}
	if o.DBAdminName != "" {
		cfg.DBAdminName = o.DBAdminName
	}
	if o.RedisURL != "" {
		cfg.RedisURL = o.RedisURL
	}
	if o.SharedGroup != "" {
		cfg.SharedGroup = o.SharedGroup
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
}
