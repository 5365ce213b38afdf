package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FocuswithJustin/versereader/core/cache"
	"github.com/FocuswithJustin/versereader/core/errors"
	"github.com/FocuswithJustin/versereader/internal/library"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.CacheTTL() != cache.DefaultTTL {
		t.Errorf("CacheTTL() = %v", cfg.CacheTTL())
	}
	if cfg.LibraryTTL() != library.DefaultTTL {
		t.Errorf("LibraryTTL() = %v", cfg.LibraryTTL())
	}
	if cfg.Cache.MaxBytes != cache.DefaultMaxBytes {
		t.Errorf("MaxBytes = %d", cfg.Cache.MaxBytes)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "versereader.yaml")
	yamlData := `
listen: ":9090"
corpus:
  dir: /srv/bible
  timeout: 5s
  versions: [acf]
cache:
  max_bytes: 1048576
  ttl: 10m
library:
  ttl: 1m
log:
  level: debug
  format: text
cors:
  allowed_origins:
    - https://reader.example
`
	if err := os.WriteFile(path, []byte(yamlData), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	if cfg.Listen != ":9090" || cfg.Corpus.Dir != "/srv/bible" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.FetchTimeout() != 5*time.Second || cfg.CacheTTL() != 10*time.Minute || cfg.LibraryTTL() != time.Minute {
		t.Errorf("durations = %v %v %v", cfg.FetchTimeout(), cfg.CacheTTL(), cfg.LibraryTTL())
	}
	if len(cfg.Corpus.Versions) != 1 || cfg.Corpus.Versions[0] != "acf" {
		t.Errorf("Versions = %v", cfg.Corpus.Versions)
	}
	if cfg.Store.Path != "versereader.db" {
		t.Errorf("unset fields should keep defaults, Store.Path = %q", cfg.Store.Path)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 {
		t.Errorf("AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Listen != DefaultConfig().Listen {
		t.Errorf("Listen = %q", cfg.Listen)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("listen: [unclosed"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VERSEREADER_LISTEN", ":7000")
	t.Setenv("VERSEREADER_DB", "/tmp/x.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":7000" || cfg.Store.Path != "/tmp/x.db" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cfg.yaml")
	cfg := DefaultConfig()
	cfg.Listen = ":1234"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Listen != ":1234" {
		t.Errorf("Listen = %q", loaded.Listen)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }, "listen"},
		{"no corpus source", func(c *Config) { c.Corpus.BaseURL = ""; c.Corpus.Dir = "" }, "corpus"},
		{"bad timeout", func(c *Config) { c.Corpus.Timeout = "soon" }, "corpus.timeout"},
		{"negative ttl", func(c *Config) { c.Cache.TTL = "-1m" }, "cache.ttl"},
		{"negative budget", func(c *Config) { c.Cache.MaxBytes = -1 }, "cache.max_bytes"},
		{"bad version", func(c *Config) { c.Corpus.Versions = []string{"../x"} }, "version"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var v *errors.ValidationError
			if !errors.As(err, &v) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if v.Field != tt.field {
				t.Errorf("Field = %q, want %q", v.Field, tt.field)
			}
		})
	}
}
