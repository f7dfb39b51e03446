package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 || cfg.StoreDriver != "sqlite" || cfg.RecurringInvoiceSchedule != "@daily" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.SupabaseEnabled() {
		t.Error("supabase should be disabled by default")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "PORT: 9000\nSTORE_DRIVER: memory\nPORTAL_SESSION_TTL: 30m\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "9100")

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("expected env port 9100, got %d", cfg.Port)
	}
	if cfg.StoreDriver != "memory" {
		t.Errorf("expected file driver memory, got %s", cfg.StoreDriver)
	}
	if cfg.PortalSessionTTL != 30*time.Minute {
		t.Errorf("expected 30m ttl, got %s", cfg.PortalSessionTTL)
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("LOG_LEVEL=debug\nOWNER_ID=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("OWNER_ID", "")
	os.Unsetenv("OWNER_ID")

	if err := config.LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("LOG_LEVEL"); got != "warn" {
		t.Errorf("expected existing env kept, got %s", got)
	}
	if got := os.Getenv("OWNER_ID"); got != "from-file" {
		t.Errorf("expected value from file, got %q", got)
	}
}

func TestLoad_CommaSeparatedOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, http://localhost:5173")

	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
}
