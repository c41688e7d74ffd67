package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Sources  SourcesConfig  `yaml:"sources"`
	Export   ExportConfig   `yaml:"export"`
	Verify   VerifyConfig   `yaml:"verify"`
	HTTP     HTTPConfig     `yaml:"http"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	RequireTLS bool   `yaml:"require_tls"`
}

type SourcesConfig struct {
	Agencies    string `yaml:"agencies"`
	Corrections string `yaml:"corrections"`
}

type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// MinSampleSize is the smallest checksum round-trip sample per record kind.
const MinSampleSize = 10

// VerifyConfig.SampleSize bounds the checksum round trip; 0 checks every row.
type VerifyConfig struct {
	SampleSize int `yaml:"sample_size"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "duckdb", DSN: "ecfr_analytics.duckdb"},
		Sources: SourcesConfig{
			Agencies:    "data/agencies.json",
			Corrections: "data/corrections.json",
		},
		Export:   ExportConfig{Dir: "exports"},
		HTTP:     HTTPConfig{Addr: ":8080"},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"ECFR_DB_DRIVER":        &c.Database.Driver,
		"ECFR_DB_DSN":           &c.Database.DSN,
		"ECFR_AGENCIES_FILE":    &c.Sources.Agencies,
		"ECFR_CORRECTIONS_FILE": &c.Sources.Corrections,
		"ECFR_EXPORT_DIR":       &c.Export.Dir,
		"ECFR_HTTP_ADDR":        &c.HTTP.Addr,
		"ECFR_LOG_LEVEL":        &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := os.LookupEnv("ECFR_VERIFY_SAMPLE_SIZE"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid ECFR_VERIFY_SAMPLE_SIZE %q: %w", v, err)
		}
		c.Verify.SampleSize = n
	}
	if v, ok := os.LookupEnv("ECFR_DB_REQUIRE_TLS"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			c.Database.RequireTLS = true
		default:
			c.Database.RequireTLS = false
		}
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "duckdb", "pgx":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be duckdb or pgx, got %q", c.Database.Driver))
	}
	if c.Database.Driver == "pgx" && c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required for pgx"))
	}
	switch {
	case c.Verify.SampleSize < 0:
		errs = append(errs, errors.New("verify.sample_size must not be negative"))
	case c.Verify.SampleSize > 0 && c.Verify.SampleSize < MinSampleSize:
		errs = append(errs, fmt.Errorf("verify.sample_size must be 0 (all rows) or at least %d, got %d", MinSampleSize, c.Verify.SampleSize))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level maps log_level onto the fiber logger levels.
func (c *Config) Level() (log.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return log.LevelDebug, nil
	case "", "info":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	}
	return log.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
}
