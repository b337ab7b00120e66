// Package config loads chronoshift settings from a YAML file, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable. Secrets are read from the environment only and
// never written back to the file.
type Config struct {
	BaseURL          string        `yaml:"base_url"`
	DefaultSource    string        `yaml:"default_source"`
	DefaultTarget    string        `yaml:"default_target"`
	ProfilePath      string        `yaml:"profile_path"`
	CacheDir         string        `yaml:"cache_dir"`
	Listen           string        `yaml:"listen"`
	GeminiModel      string        `yaml:"gemini_model"`
	GCPProject       string        `yaml:"gcp_project"`
	GeminiAPIKey     string        `yaml:"-"`
	GoogleMapsAPIKey string        `yaml:"-"`
	Timeout          time.Duration `yaml:"timeout"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	CatalogTTL       time.Duration `yaml:"catalog_ttl"`
	FactTTL          time.Duration `yaml:"fact_ttl"`
	WorkStart        int           `yaml:"work_start"`
	WorkEnd          int           `yaml:"work_end"`
	Retries          int           `yaml:"retries"`
	Concurrency      int           `yaml:"concurrency"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:       "https://worldtimeapi.org/api",
		DefaultSource: "America/New_York",
		DefaultTarget: "Europe/London",
		ProfilePath:   defaultProfilePath(),
		CacheDir:      defaultCacheDir(),
		Listen:        ":8080",
		GeminiModel:   "gemini-2.5-flash-lite",
		Timeout:       10 * time.Second,
		BaseDelay:     time.Second,
		CatalogTTL:    12 * time.Hour,
		FactTTL:       24 * time.Hour,
		WorkStart:     9,
		WorkEnd:       17,
		Retries:       2,
		Concurrency:   4,
	}
}

// Dir is the per-user configuration directory.
func Dir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".chronoshift"
	}
	return filepath.Join(dir, "chronoshift")
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func defaultProfilePath() string {
	return filepath.Join(Dir(), "profiles.json")
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "chronoshift")
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".chronoshift-config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("setting config mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	str(&c.BaseURL, "CHRONOSHIFT_BASE_URL")
	str(&c.DefaultSource, "CHRONOSHIFT_SOURCE")
	str(&c.DefaultTarget, "CHRONOSHIFT_TARGET")
	str(&c.ProfilePath, "CHRONOSHIFT_PROFILES")
	str(&c.CacheDir, "CHRONOSHIFT_CACHE_DIR", "CACHE_DIR")
	str(&c.Listen, "CHRONOSHIFT_LISTEN")
	str(&c.GeminiModel, "GEMINI_MODEL")
	str(&c.GeminiAPIKey, "GEMINI_API_KEY", "API_KEY")
	str(&c.GoogleMapsAPIKey, "GOOGLE_MAPS_API_KEY")
	str(&c.GCPProject, "GCP_PROJECT", "GOOGLE_CLOUD_PROJECT")

	ints := []struct {
		dst *int
		key string
	}{
		{&c.WorkStart, "CHRONOSHIFT_WORK_START"},
		{&c.WorkEnd, "CHRONOSHIFT_WORK_END"},
		{&c.Retries, "CHRONOSHIFT_RETRIES"},
		{&c.Concurrency, "CHRONOSHIFT_CONCURRENCY"},
	}
	for _, e := range ints {
		v := getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&c.Timeout, "CHRONOSHIFT_TIMEOUT"},
		{&c.BaseDelay, "CHRONOSHIFT_BASE_DELAY"},
		{&c.CatalogTTL, "CHRONOSHIFT_CATALOG_TTL"},
	}
	for _, e := range durations {
		v := getenv(e.key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = d
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.WorkStart < 0 || c.WorkStart > 23:
		return fmt.Errorf("work_start %d outside 0..23", c.WorkStart)
	case c.WorkEnd < 1 || c.WorkEnd > 24:
		return fmt.Errorf("work_end %d outside 1..24", c.WorkEnd)
	case c.WorkStart >= c.WorkEnd:
		return fmt.Errorf("work_start %d must be before work_end %d", c.WorkStart, c.WorkEnd)
	case c.Retries < 0:
		return fmt.Errorf("retries %d is negative", c.Retries)
	case c.Timeout <= 0:
		return fmt.Errorf("timeout %s must be positive", c.Timeout)
	case c.BaseDelay < 0:
		return fmt.Errorf("base_delay %s is negative", c.BaseDelay)
	case c.Concurrency < 1:
		return fmt.Errorf("concurrency %d must be at least 1", c.Concurrency)
	case c.BaseURL == "":
		return errors.New("base_url is empty")
	}
	return nil
}
