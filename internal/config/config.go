// Package config loads the collector configuration from an optional YAML
// file plus KEIBA_* environment overrides. Configuration is read once at
// startup and treated as immutable for the lifetime of the run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keibalab/keiba-collector/internal/logging"
)

// DataStartYear is the first year the source publishes data for.
const DataStartYear = 1986

// Config is the full collector configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Output  OutputConfig  `yaml:"output"`
	Collect CollectConfig `yaml:"collect"`
	Metrics MetricsConfig `yaml:"metrics"`
	Publish PublishConfig `yaml:"publish"`
	Logging logging.Config `yaml:"logging"`
}

// SourceConfig configures the HTTP fetcher.
type SourceConfig struct {
	BaseURL          string        `yaml:"base_url"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	ThrottleInterval time.Duration `yaml:"throttle_interval"`
	UserAgent        string        `yaml:"user_agent"`
}

// OutputConfig configures the CSV writer.
type OutputConfig struct {
	Dir  string `yaml:"dir"`
	Gzip bool   `yaml:"gzip"`
}

// CollectConfig configures the collector and orchestrator.
type CollectConfig struct {
	Parallelism     int     `yaml:"parallelism"`
	MaxFailureRatio float64 `yaml:"max_failure_ratio"`
	HorsePageCap    int     `yaml:"horse_page_cap"`
}

// MetricsConfig configures the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// PublishConfig configures the optional blob upload of completed units.
// BucketURL accepts gocloud.dev URLs (file://, gs://, s3://).
type PublishConfig struct {
	BucketURL string `yaml:"bucket_url"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Source: SourceConfig{
			BaseURL:          "https://www.jra.go.jp",
			RequestTimeout:   30 * time.Second,
			MaxRetries:       3,
			ThrottleInterval: time.Second,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
				"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		},
		Output: OutputConfig{
			Dir: "./data",
		},
		Collect: CollectConfig{
			Parallelism:     1,
			MaxFailureRatio: 0.25,
			HorsePageCap:    50,
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Logging: logging.Config{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load reads configuration from path (when non-empty and present) on top of
// defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must not be empty")
	}
	if c.Source.MaxRetries < 1 {
		return fmt.Errorf("source.max_retries must be at least 1, got %d", c.Source.MaxRetries)
	}
	if c.Collect.Parallelism < 1 {
		return fmt.Errorf("collect.parallelism must be at least 1, got %d", c.Collect.Parallelism)
	}
	if c.Collect.MaxFailureRatio < 0 || c.Collect.MaxFailureRatio > 1 {
		return fmt.Errorf("collect.max_failure_ratio must be within [0,1], got %g", c.Collect.MaxFailureRatio)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Source.BaseURL = getenvDefault("KEIBA_BASE_URL", cfg.Source.BaseURL)
	cfg.Output.Dir = getenvDefault("KEIBA_OUTPUT_DIR", cfg.Output.Dir)
	cfg.Publish.BucketURL = getenvDefault("KEIBA_PUBLISH_BUCKET", cfg.Publish.BucketURL)
	cfg.Logging.Level = getenvDefault("KEIBA_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getenvDefault("KEIBA_LOG_FORMAT", cfg.Logging.Format)

	if v := os.Getenv("KEIBA_THROTTLE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Source.ThrottleInterval = d
		}
	}
	if v := os.Getenv("KEIBA_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Source.MaxRetries = n
		}
	}
	if v := os.Getenv("KEIBA_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Collect.Parallelism = n
		}
	}
	if v := os.Getenv("KEIBA_GZIP"); v != "" {
		cfg.Output.Gzip = v == "true" || v == "1"
	}
	if v := os.Getenv("KEIBA_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
