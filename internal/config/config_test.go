package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  cors_origins:
    - https://consultorio.example
database:
  host: db.internal
  name: consultorio
auth:
  jwt_secret: file-secret
appointments:
  slot_minutes: 45
  strict_transitions: true
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Name != "consultorio" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("expected default database.port 5432, got %d", cfg.Database.Port)
	}
	if cfg.Auth.TokenExpiry != 24*time.Hour {
		t.Errorf("auth.token_expiry = %v, want 24h", cfg.Auth.TokenExpiry)
	}
	if got := cfg.Appointments.SlotLength(); got != 45*time.Minute {
		t.Errorf("SlotLength() = %v, want 45m", got)
	}
	if !cfg.Appointments.StrictTransitions || cfg.Appointments.PreventDoubleBooking || cfg.Appointments.StrictOwnership {
		t.Errorf("appointments = %+v", cfg.Appointments)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "https://consultorio.example" {
		t.Errorf("server.cors_origins = %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadDefaultsAllowAnyOrigin(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: file-secret\n")
	t.Setenv("CLINIC_APPOINTMENTS_STRICT_OWNERSHIP", "true")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if len(cfg.Server.CORSOrigins) != 0 {
		t.Errorf("server.cors_origins = %v, want none", cfg.Server.CORSOrigins)
	}
	if !cfg.Appointments.StrictOwnership {
		t.Error("expected strict_ownership from env")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: file-secret\n")
	t.Setenv("CLINIC_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("POSTGRES_HOST", "pg.legacy")
	t.Setenv("CLINIC_APPOINTMENTS_PREVENT_DOUBLE_BOOKING", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("jwt secret = %q, want env-secret", cfg.Auth.JWTSecret)
	}
	if cfg.Database.Host != "pg.legacy" {
		t.Errorf("database.host = %q, want pg.legacy", cfg.Database.Host)
	}
	if !cfg.Appointments.PreventDoubleBooking {
		t.Error("expected prevent_double_booking from env")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("kafka.brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CLINIC_AUTH_JWT_SECRET", "")
	path := writeConfig(t, "server:\n  port: 8080\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error without auth.jwt_secret")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for explicit missing file")
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5433, User: "u", Password: "p", Name: "n", SSLMode: "require"}
	want := "host=h port=5433 user=u password=p dbname=n sslmode=require"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
