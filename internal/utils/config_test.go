package utils

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ACTIVATION_SECRET", "a")
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("MAIL_DRIVER", "log")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("VERIFY_TOKEN_TTL", "")
	t.Setenv("SESSION_TOKEN_TTL", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.StoreDriver != StoreDriverMongo {
		t.Fatalf("expected mongo driver by default, got %s", cfg.StoreDriver)
	}
	if cfg.Auth.VerifyTokenTTL != 5*time.Minute {
		t.Fatalf("expected 5m verify ttl, got %s", cfg.Auth.VerifyTokenTTL)
	}
	if cfg.Auth.SessionTokenTTL != 5*24*time.Hour {
		t.Fatalf("expected 5 day session ttl, got %s", cfg.Auth.SessionTokenTTL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSOrigins)
	}
}

func TestLoadConfigMissingSecrets(t *testing.T) {
	t.Setenv("ACTIVATION_SECRET", "")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("MAIL_DRIVER", "http")
	t.Setenv("MAIL_FROM", "")
	t.Setenv("MAIL_API_KEY", "")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected error for missing variables")
	}
	for _, key := range []string{"ACTIVATION_SECRET", "SESSION_SECRET", "MAIL_FROM", "MAIL_API_KEY"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in error, got %v", key, err)
		}
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := &Config{
		StoreDriver: "sqlite",
		Auth:        AuthConfig{ActivationSecret: "a", SessionSecret: "s"},
		Mail:        MailConfig{Driver: MailDriverLog},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported store driver")
	}
}

func TestBuildDSN(t *testing.T) {
	cfg := PostgresConfig{User: "u", Password: "p", Host: "h", Port: 5432, Database: "d"}
	if got := cfg.BuildDSN(); got != "postgres://u:p@h:5432/d" {
		t.Fatalf("unexpected dsn %s", got)
	}
	cfg.DSN = "postgres://override"
	if got := cfg.BuildDSN(); got != "postgres://override" {
		t.Fatalf("expected explicit dsn, got %s", got)
	}
}
