package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.WorkStart != 9 || cfg.WorkEnd != 17 || cfg.Retries != 2 || cfg.Timeout != 10*time.Second {
		t.Errorf("Default() = %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "work_start: 8\nwork_end: 18\ntimeout: 3s\ndefault_target: Asia/Tokyo\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := Default()
	want.WorkStart, want.WorkEnd = 8, 18
	want.Timeout = 3 * time.Second
	want.DefaultTarget = "Asia/Tokyo"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("work_start: [nine]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil for malformed YAML")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Concurrency = 8
	cfg.GeminiAPIKey = "secret"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Error("Save() wrote an API key to disk")
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.GeminiAPIKey = ""
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CHRONOSHIFT_WORK_START": "10",
		"CHRONOSHIFT_TIMEOUT":    "250ms",
		"CHRONOSHIFT_SOURCE":     "Europe/Paris",
		"API_KEY":                "fallback-key",
		"GOOGLE_MAPS_API_KEY":    "maps-key",
		"GOOGLE_CLOUD_PROJECT":   "proj",
		"CACHE_DIR":              "/var/cache/cs",
	}
	cfg := Default()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.WorkStart != 10 || cfg.Timeout != 250*time.Millisecond || cfg.DefaultSource != "Europe/Paris" || cfg.CacheDir != "/var/cache/cs" {
		t.Errorf("ApplyEnv() = %+v", cfg)
	}
	if cfg.GeminiAPIKey != "fallback-key" || cfg.GoogleMapsAPIKey != "maps-key" || cfg.GCPProject != "proj" {
		t.Errorf("secrets not applied: %+v", cfg)
	}

	env["GEMINI_API_KEY"] = "primary-key"
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatal(err)
	}
	if cfg.GeminiAPIKey != "primary-key" {
		t.Errorf("GeminiAPIKey = %q, want GEMINI_API_KEY to win", cfg.GeminiAPIKey)
	}
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	for key, val := range map[string]string{
		"CHRONOSHIFT_RETRIES": "two",
		"CHRONOSHIFT_TIMEOUT": "10",
	} {
		cfg := Default()
		err := cfg.ApplyEnv(func(k string) string {
			if k == key {
				return val
			}
			return ""
		})
		if err == nil || !strings.Contains(err.Error(), key) {
			t.Errorf("ApplyEnv(%s=%s) error = %v", key, val, err)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("CHRONOSHIFT_TEST_DOTENV=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHRONOSHIFT_TEST_DOTENV", "")
	os.Unsetenv("CHRONOSHIFT_TEST_DOTENV")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("CHRONOSHIFT_TEST_DOTENV"); got != "loaded" {
		t.Errorf("CHRONOSHIFT_TEST_DOTENV = %q, want loaded", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"start after end", func(c *Config) { c.WorkStart, c.WorkEnd = 18, 9 }, "before work_end"},
		{"equal bounds", func(c *Config) { c.WorkStart, c.WorkEnd = 9, 9 }, "before work_end"},
		{"end past midnight", func(c *Config) { c.WorkEnd = 25 }, "work_end"},
		{"negative start", func(c *Config) { c.WorkStart = -1 }, "work_start"},
		{"negative retries", func(c *Config) { c.Retries = -1 }, "retries"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
		{"no base url", func(c *Config) { c.BaseURL = "" }, "base_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}

	full := Default()
	full.WorkStart, full.WorkEnd = 0, 24
	if err := full.Validate(); err != nil {
		t.Errorf("Validate() for a 24h day = %v", err)
	}
}
