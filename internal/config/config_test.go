package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Addr != ":4000" {
		t.Errorf("Addr = %s, want :4000", cfg.Addr)
	}
	if cfg.Database.Dialect != "sqlite" {
		t.Errorf("Dialect = %s, want sqlite", cfg.Database.Dialect)
	}
	if cfg.Upload.MaxFileSize != 10<<20 {
		t.Errorf("MaxFileSize = %d, want 10MB", cfg.Upload.MaxFileSize)
	}
	if cfg.Upload.MaxFiles != 5 {
		t.Errorf("MaxFiles = %d, want 5", cfg.Upload.MaxFiles)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collabd.yaml")
	content := `
addr: ":9000"
database:
  dialect: postgres
  dsn: "postgres://localhost/collabd"
auth:
  jwt_secret: s3cret
  token_ttl: 1h
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %s, want :9000", cfg.Addr)
	}
	if cfg.Database.Dialect != "postgres" {
		t.Errorf("Dialect = %s, want postgres", cfg.Database.Dialect)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("JWTSecret = %s", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("TokenTTL = %v, want 1h", cfg.Auth.TokenTTL)
	}
	// Unset fields keep defaults.
	if cfg.Upload.MaxFiles != 5 {
		t.Errorf("MaxFiles = %d, want default 5", cfg.Upload.MaxFiles)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Addr != ":4000" {
		t.Errorf("Addr = %s, want default", cfg.Addr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COLLABD_ADDR", ":5000")
	t.Setenv("COLLABD_JWT_SECRET", "env-secret")
	t.Setenv("COLLABD_AI_DELAY", "50ms")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Addr != ":5000" {
		t.Errorf("Addr = %s, want :5000", cfg.Addr)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("JWTSecret = %s", cfg.Auth.JWTSecret)
	}
	if cfg.AIDelay != 50*time.Millisecond {
		t.Errorf("AIDelay = %v, want 50ms", cfg.AIDelay)
	}
}

func TestValidateRejectsBadDialect(t *testing.T) {
	cfg := Default()
	cfg.Database.Dialect = "oracle"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown dialect")
	}
}
