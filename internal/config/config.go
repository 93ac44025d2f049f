package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	yaml "gopkg.in/yaml.v2"

	"profile-enricher/internal/platform"
)

// PlatformConfig is the rate budget of a single platform.
type PlatformConfig struct {
	// Rate is the refill rate in tokens per second.
	Rate float64 `yaml:"rate"`
	// Capacity is the bucket size. Defaults to 1 (a single in-flight slot).
	Capacity int `yaml:"capacity"`
}

type RetryConfig struct {
	MaxRetries  int     `yaml:"max_retries"`
	BackoffBase float64 `yaml:"backoff_base"`
	JitterMS    int     `yaml:"jitter_ms"`
}

// DelayConfig bounds the random pause inserted before every attempt.
type DelayConfig struct {
	MinMS int `yaml:"min_ms"`
	MaxMS int `yaml:"max_ms"`
}

type BrowserConfig struct {
	Enabled   bool   `yaml:"enabled"`
	WaitMS    int    `yaml:"wait_ms"`
	UserAgent string `yaml:"user_agent"`
}

type SinkRetryConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

type StorageConfig struct {
	Type string `yaml:"type"`
	CSV  struct {
		OutputDir string `yaml:"output_dir"`
	} `yaml:"csv"`
	Postgres struct {
		DSN   string `yaml:"dsn"`
		Table string `yaml:"table"`
	} `yaml:"postgres"`
	Retry SinkRetryConfig `yaml:"retry"`
}

// FilesConfig holds the upload limits and the thresholds above which the
// spreadsheet writer switches to streaming.
type FilesConfig struct {
	MaxBytes   int64 `yaml:"max_bytes"`
	LargeBytes int64 `yaml:"large_bytes"`
	LargeCells int   `yaml:"large_cells"`
}

type Config struct {
	Platforms map[platform.Platform]PlatformConfig `yaml:"platforms"`
	Retry     RetryConfig                          `yaml:"retry"`
	Delay     DelayConfig                          `yaml:"delay"`
	// Workers is the size of the fetch worker pool.
	Workers               int           `yaml:"workers"`
	RequestTimeoutSeconds int           `yaml:"request_timeout_seconds"`
	PhotosDir             string        `yaml:"photos_dir"`
	Browser               BrowserConfig `yaml:"browser"`
	Storage               StorageConfig `yaml:"storage"`
	Files                 FilesConfig   `yaml:"files"`
	LogLevel              string        `yaml:"log_level"`
}

// Default returns the documented fallback values.
func Default() *Config {
	return &Config{
		Platforms: map[platform.Platform]PlatformConfig{
			platform.LeetCode:   {Rate: 1, Capacity: 1},
			platform.Codeforces: {Rate: 0.5, Capacity: 1},
			platform.LinkedIn:   {Rate: 0.3, Capacity: 1},
			platform.GitHub:     {Rate: 1, Capacity: 1},
		},
		Retry:                 RetryConfig{MaxRetries: 2, BackoffBase: 2, JitterMS: 250},
		Delay:                 DelayConfig{MinMS: 750, MaxMS: 1250},
		Workers:               4,
		RequestTimeoutSeconds: 15,
		PhotosDir:             "./photos",
		Browser:               BrowserConfig{WaitMS: 3000},
		Storage: StorageConfig{
			Type:  "none",
			Retry: SinkRetryConfig{Attempts: 3, DelayMS: 500},
		},
		Files:    FilesConfig{MaxBytes: 10 << 20, LargeBytes: 5 << 20, LargeCells: 10_000},
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, the optional YAML file at path
// and finally the environment (a .env file in the working directory is
// loaded first when present).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", absPath, err)
		}
	}

	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, using process environment only")
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables. getenv is injected so
// tests do not have to touch the process environment.
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("RATE_LIMITS"); v != "" {
		rates, err := ParseRateLimits(v)
		if err != nil {
			return err
		}
		for p, r := range rates {
			pc := c.Platforms[p]
			pc.Rate = r
			c.Platforms[p] = pc
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_RETRIES", &c.Retry.MaxRetries},
		{"INTER_REQUEST_DELAY_MIN", &c.Delay.MinMS},
		{"INTER_REQUEST_DELAY_MAX", &c.Delay.MaxMS},
		{"WORKERS", &c.Workers},
		{"REQUEST_TIMEOUT", &c.RequestTimeoutSeconds},
	}
	for _, e := range ints {
		v := getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", e.key, err)
		}
		*e.dst = n
	}

	if v := getenv("BACKOFF_BASE"); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("BACKOFF_BASE must be a number: %w", err)
		}
		c.Retry.BackoffBase = f
	}
	if v := getenv("PHOTOS_DIR"); v != "" {
		c.PhotosDir = v
	}
	if v := getenv("BROWSER_ENABLED"); v != "" {
		c.Browser.Enabled = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	if v := getenv("PG_DSN"); v != "" {
		c.Storage.Postgres.DSN = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// ParseRateLimits parses the "leetcode:1,codeforces:0.5" format.
func ParseRateLimits(s string) (map[platform.Platform]float64, error) {
	out := make(map[platform.Platform]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, rate, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid rate limit entry %q, expected platform:rate", pair)
		}
		p, err := platform.Parse(name)
		if err != nil {
			return nil, err
		}
		r, err := strconv.ParseFloat(strings.TrimSpace(rate), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %w", p, err)
		}
		out[p] = r
	}
	return out, nil
}

// Normalize fills the documented fallbacks for unset values. It mutates c, so
// it must run before c is shared between jobs.
func (c *Config) Normalize() {
	if c.Platforms == nil {
		c.Platforms = make(map[platform.Platform]PlatformConfig)
	}
	for p, pc := range c.Platforms {
		if pc.Capacity <= 0 {
			pc.Capacity = 1
			c.Platforms[p] = pc
		}
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 15
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "none"
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	if c.Platforms != nil {
		out.Platforms = make(map[platform.Platform]PlatformConfig, len(c.Platforms))
		for p, pc := range c.Platforms {
			out.Platforms[p] = pc
		}
	}
	return &out
}

// Validate checks the configuration without modifying it. Unset values that
// Normalize would fill are accepted.
func (c *Config) Validate() error {
	for p := range c.Platforms {
		if !p.Valid() {
			return fmt.Errorf("unknown platform %q in platforms", p)
		}
	}
	for _, p := range platform.All {
		pc, ok := c.Platforms[p]
		if !ok {
			return fmt.Errorf("platforms.%s is required", p)
		}
		if pc.Rate <= 0 {
			return fmt.Errorf("platforms.%s.rate must be positive", p)
		}
		if pc.Capacity < 0 {
			return fmt.Errorf("platforms.%s.capacity must not be negative", p)
		}
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if c.Retry.BackoffBase <= 0 {
		return fmt.Errorf("retry.backoff_base must be positive")
	}
	if c.Retry.JitterMS < 0 {
		return fmt.Errorf("retry.jitter_ms must not be negative")
	}
	if c.Delay.MinMS < 0 || c.Delay.MaxMS < c.Delay.MinMS {
		return fmt.Errorf("delay bounds must satisfy 0 <= min_ms <= max_ms (got %d, %d)", c.Delay.MinMS, c.Delay.MaxMS)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("request_timeout_seconds must not be negative")
	}

	switch c.Storage.Type {
	case "", "none":
	case "csv":
		if c.Storage.CSV.OutputDir == "" {
			return fmt.Errorf("storage.csv.output_dir is required when storage type is csv")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required when storage type is postgres")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

// RequestTimeout returns the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
