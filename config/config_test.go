package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2/log"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ecfrlake.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Driver != "duckdb" || cfg.Export.Dir != "exports" || cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: pgx
  dsn: postgres://u:p@localhost:5432/ecfr?sslmode=disable
sources:
  agencies: in/agencies.json
verify:
  sample_size: 25
log_level: debug
`)
	t.Setenv("ECFR_EXPORT_DIR", "/tmp/out")
	t.Setenv("ECFR_VERIFY_SAMPLE_SIZE", "50")
	t.Setenv("ECFR_DB_REQUIRE_TLS", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Driver != "pgx" || cfg.Sources.Agencies != "in/agencies.json" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Sources.Corrections != "data/corrections.json" {
		t.Fatalf("unset values should keep their default, got %q", cfg.Sources.Corrections)
	}
	if cfg.Export.Dir != "/tmp/out" || cfg.Verify.SampleSize != 50 || !cfg.Database.RequireTLS {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if level, err := cfg.Level(); err != nil || level != log.LevelDebug {
		t.Fatalf("level %v %v", level, err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "database: [")); err == nil {
		t.Fatal("expected parse error")
	}
	t.Setenv("ECFR_VERIFY_SAMPLE_SIZE", "many")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric sample size")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Database.Driver = "sqlite"
	cfg.Verify.SampleSize = -1
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"database.driver", "sample_size", "log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}

	cfg = Default()
	cfg.Database.Driver = "pgx"
	cfg.Database.DSN = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "dsn") {
		t.Fatalf("expected dsn error, got %v", err)
	}
}

func TestValidateSampleSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		size int
		ok   bool
	}{
		{size: 0, ok: true},
		{size: 1, ok: false},
		{size: 9, ok: false},
		{size: MinSampleSize, ok: true},
		{size: 500, ok: true},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Verify.SampleSize = tt.size
		err := cfg.Validate()
		if (err == nil) != tt.ok {
			t.Fatalf("sample_size %d: ok=%v, got %v", tt.size, tt.ok, err)
		}
		if err != nil && !strings.Contains(err.Error(), "at least 10") {
			t.Fatalf("sample_size %d: unexpected message %v", tt.size, err)
		}
	}
}
