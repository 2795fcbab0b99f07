package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverMongo    = "mongo"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	MailDriverHTTP = "http"
	MailDriverLog  = "log"
)

type Config struct {
	ServerPort  string
	StoreDriver string
	CORSOrigins []string
	Auth        AuthConfig
	Mail        MailConfig
	Postgres    PostgresConfig
	Mongo       MongoConfig
	Logging     LoggingConfig
}

type AuthConfig struct {
	ActivationSecret string
	SessionSecret    string
	VerifyTokenTTL   time.Duration
	SessionTokenTTL  time.Duration
}

type MailConfig struct {
	Driver  string
	From    string
	APIKey  string
	APIBase string
	Subject string
	Timeout time.Duration
}

type PostgresConfig struct {
	DSN               string
	Host              string
	Port              int
	User              string
	Password          string
	Database          string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Development  bool
	EnableCaller bool
	ServiceName  string
}

func LoadConfig() (*Config, error) {
	port := envOrDefault("PORT", "8080")

	pgPort, _ := strconv.Atoi(envOrDefault("POSTGRES_PORT", "5432"))
	maxConns := parseInt32(envOrDefault("POSTGRES_MAX_CONNS", "8"), 8)
	minConns := parseInt32(envOrDefault("POSTGRES_MIN_CONNS", "1"), 1)

	logging := LoggingConfig{
		Level:        strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		Encoding:     strings.ToLower(envOrDefault("LOG_ENCODING", "console")),
		Development:  parseBool(envOrDefault("LOG_DEVELOPMENT", "false"), false),
		EnableCaller: parseBool(envOrDefault("LOG_CALLER", "false"), false),
		ServiceName:  envOrDefault("SERVICE_NAME", "otpchat-server"),
	}

	cfg := &Config{
		ServerPort:  port,
		StoreDriver: strings.ToLower(envOrDefault("STORE_DRIVER", StoreDriverMongo)),
		CORSOrigins: parseList(envOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		Auth: AuthConfig{
			ActivationSecret: strings.TrimSpace(os.Getenv("ACTIVATION_SECRET")),
			SessionSecret:    strings.TrimSpace(os.Getenv("SESSION_SECRET")),
			VerifyTokenTTL:   parseDuration(envOrDefault("VERIFY_TOKEN_TTL", "5m"), 5*time.Minute),
			SessionTokenTTL:  parseDuration(envOrDefault("SESSION_TOKEN_TTL", "120h"), 120*time.Hour),
		},
		Mail: MailConfig{
			Driver:  strings.ToLower(envOrDefault("MAIL_DRIVER", MailDriverHTTP)),
			From:    strings.TrimSpace(os.Getenv("MAIL_FROM")),
			APIKey:  strings.TrimSpace(os.Getenv("MAIL_API_KEY")),
			APIBase: strings.TrimRight(envOrDefault("MAIL_API_BASE", "https://api.resend.com"), "/"),
			Subject: envOrDefault("MAIL_SUBJECT", "Your login code"),
			Timeout: parseDuration(envOrDefault("MAIL_TIMEOUT", "15s"), 15*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:               os.Getenv("POSTGRES_DSN"),
			Host:              envOrDefault("POSTGRES_HOST", "localhost"),
			Port:              pgPort,
			User:              envOrDefault("POSTGRES_USER", "postgres"),
			Password:          envOrDefault("POSTGRES_PASSWORD", "postgres"),
			Database:          envOrDefault("POSTGRES_DB", "otpchat"),
			MaxConns:          maxConns,
			MinConns:          minConns,
			MaxConnLifetime:   parseDuration(envOrDefault("POSTGRES_MAX_CONN_LIFETIME", "1h"), time.Hour),
			MaxConnIdleTime:   parseDuration(envOrDefault("POSTGRES_MAX_CONN_IDLE", "30m"), 30*time.Minute),
			HealthCheckPeriod: parseDuration(envOrDefault("POSTGRES_HEALTH_CHECK_PERIOD", "1m"), time.Minute),
			ConnectTimeout:    parseDuration(envOrDefault("POSTGRES_CONNECT_TIMEOUT", "5s"), 5*time.Second),
		},
		Mongo: MongoConfig{
			URI:            envOrDefault("MONGO_URI", "mongodb://localhost:27017"),
			Database:       envOrDefault("MONGO_DATABASE", "otpchat"),
			ConnectTimeout: parseDuration(envOrDefault("MONGO_CONNECT_TIMEOUT", "5s"), 5*time.Second),
		},
		Logging: logging,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	missing := make([]string, 0, 4)

	if c.Auth.ActivationSecret == "" {
		missing = append(missing, "ACTIVATION_SECRET")
	}
	if c.Auth.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	if c.Mail.Driver == MailDriverHTTP {
		if c.Mail.From == "" {
			missing = append(missing, "MAIL_FROM")
		}
		if c.Mail.APIKey == "" {
			missing = append(missing, "MAIL_API_KEY")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	switch c.StoreDriver {
	case StoreDriverMongo, StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.Mail.Driver {
	case MailDriverHTTP, MailDriverLog:
	default:
		return fmt.Errorf("unsupported MAIL_DRIVER %q", c.Mail.Driver)
	}

	return nil
}

func (c PostgresConfig) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt32(value string, fallback int32) int32 {
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return int32(i)
}

func parseBool(value string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
