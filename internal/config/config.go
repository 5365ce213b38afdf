// Package config loads the versereader YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/versereader/core/cache"
	"github.com/FocuswithJustin/versereader/core/corpus"
	"github.com/FocuswithJustin/versereader/core/errors"
	"github.com/FocuswithJustin/versereader/internal/library"
	"github.com/FocuswithJustin/versereader/internal/logging"
)

// Config holds all versereader configuration.
type Config struct {
	Listen  string        `yaml:"listen"`
	Corpus  CorpusConfig  `yaml:"corpus"`
	Cache   CacheConfig   `yaml:"cache"`
	Library LibraryConfig `yaml:"library"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
	CORS    CORSConfig    `yaml:"cors"`
}

// CorpusConfig says where translation documents come from. Dir wins
// over BaseURL when both are set.
type CorpusConfig struct {
	BaseURL  string   `yaml:"base_url"`
	Dir      string   `yaml:"dir"`
	Timeout  string   `yaml:"timeout"`
	Versions []string `yaml:"versions"`
}

// CacheConfig configures the parser's byte-bounded cache.
type CacheConfig struct {
	MaxBytes int64  `yaml:"max_bytes"`
	TTL      string `yaml:"ttl"`
}

// LibraryConfig configures the facade cache.
type LibraryConfig struct {
	TTL string `yaml:"ttl"`
}

// StoreConfig configures the position and bookmark database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen: ":8080",
		Corpus: CorpusConfig{
			BaseURL:  "http://localhost:8000/bible",
			Timeout:  corpus.DefaultFetchTimeout.String(),
			Versions: []string{"acf", "nvi"},
		},
		Cache: CacheConfig{
			MaxBytes: cache.DefaultMaxBytes,
			TTL:      cache.DefaultTTL.String(),
		},
		Library: LibraryConfig{TTL: library.DefaultTTL.String()},
		Store:   StoreConfig{Path: "versereader.db"},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

// Load loads configuration from a YAML file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VERSEREADER_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("VERSEREADER_CORPUS_URL"); v != "" {
		c.Corpus.BaseURL = v
	}
	if v := os.Getenv("VERSEREADER_CORPUS_DIR"); v != "" {
		c.Corpus.Dir = v
	}
	if v := os.Getenv("VERSEREADER_DB"); v != "" {
		c.Store.Path = v
	}
}

// FetchTimeout returns the corpus fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return parseDuration(c.Corpus.Timeout, corpus.DefaultFetchTimeout)
}

// CacheTTL returns the byte-bounded cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return parseDuration(c.Cache.TTL, cache.DefaultTTL)
}

// LibraryTTL returns the facade cache TTL.
func (c *Config) LibraryTTL() time.Duration {
	return parseDuration(c.Library.TTL, library.DefaultTTL)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.NewValidation("listen", "must not be empty")
	}
	if c.Corpus.Dir == "" && c.Corpus.BaseURL == "" {
		return errors.NewValidation("corpus", "either base_url or dir is required")
	}
	for field, s := range map[string]string{
		"corpus.timeout": c.Corpus.Timeout,
		"cache.ttl":      c.Cache.TTL,
		"library.ttl":    c.Library.TTL,
	} {
		if s == "" {
			continue
		}
		if d, err := time.ParseDuration(s); err != nil || d <= 0 {
			return errors.NewValidation(field, fmt.Sprintf("invalid duration %q", s))
		}
	}
	if c.Cache.MaxBytes < 0 {
		return errors.NewValidation("cache.max_bytes", "must not be negative")
	}
	for _, v := range c.Corpus.Versions {
		if err := corpus.ValidateVersion(v); err != nil {
			return err
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return errors.NewValidation("log.level", err.Error())
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return errors.NewValidation("log.format", err.Error())
	}
	return nil
}
