// Package config loads leadscout configuration: defaults, an optional YAML
// file, then environment variable overrides.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"leadscout/internal/lead"
)

// Config holds all leadscout configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Browser   BrowserConfig   `yaml:"browser"`
	LLM       LLMConfig       `yaml:"llm"`
	Store     StoreConfig     `yaml:"store"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string   `yaml:"host" env:"HOST"`
	Port            int      `yaml:"port" env:"PORT"`
	CORSOrigins     []string `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
	ReadTimeout     string   `yaml:"read_timeout"`
	WriteTimeout    string   `yaml:"write_timeout"`
	ShutdownTimeout string   `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// StoreConfig configures lead persistence.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled" env:"STORE_ENABLED"`
	Path    string `yaml:"path" env:"LEADSCOUT_DB"`
	// SkipDB keeps the store readable but stops the scrape pipeline from writing.
	SkipDB bool `yaml:"skip_db" env:"SKIP_DB"`
}

// IngestConfig configures email ingestion.
type IngestConfig struct {
	Enabled bool                    `yaml:"enabled" env:"INGEST_ENABLED"`
	Rules   lead.QualificationRules `yaml:"rules"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"LOG_FORMAT"` // json, console
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
}

// DefaultPort is used when neither the config file nor PORT set one.
const DefaultPort = 10000

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            DefaultPort,
			CORSOrigins:     []string{"*"},
			ReadTimeout:     "30s",
			WriteTimeout:    "5m",
			ShutdownTimeout: "15s",
		},
		Scraper: ScraperConfig{
			BaseURL:     "https://www.seek.com.au",
			HTTPTimeout: "15s",
			PageDelay:   "1s",
			JitterMin:   "800ms",
			JitterMax:   "1600ms",
			MaxPages:    10,
			MaxRetries:  2,
		},
		Browser: BrowserConfig{
			NavigationTimeout: "30s",
			InstallOnStart:    true,
			NoSandbox:         true,
		},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			GeminiModel: "gemini-2.5-flash",
			BaseURL:     "https://api.openai.com/v1",
			Timeout:     "60s",
			Concurrency: 4,
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    "data/leads.db",
		},
		Ingest: IngestConfig{
			Enabled: true,
			Rules:   lead.DefaultQualificationRules(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "leadscout",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment variables override both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
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

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	// Legacy name for the database location.
	if os.Getenv("LEADSCOUT_DB") == "" {
		if dsn := os.Getenv("DB_DSN"); dsn != "" {
			c.Store.Path = dsn
		}
	}
	return nil
}

// ListenAddr returns host:port for the HTTP listener.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// StoreConfigured reports whether a lead store should be opened.
func (c *Config) StoreConfigured() bool {
	return c.Store.Enabled && strings.TrimSpace(c.Store.Path) != ""
}

// GetShutdownTimeout returns the graceful shutdown timeout.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 15*time.Second)
}

// GetReadTimeout returns the HTTP read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the HTTP write timeout. Scrapes can be slow.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 5*time.Minute)
}

// ValidLogLevels lists accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("invalid scraper.max_pages: %d", c.Scraper.MaxPages)
	}
	if c.LLM.Concurrency < 1 {
		return fmt.Errorf("invalid llm.concurrency: %d", c.LLM.Concurrency)
	}
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if !contains(ValidLogLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	return nil
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
