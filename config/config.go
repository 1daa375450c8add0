// Package config manages application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ytbulk/internal/retry"
)

// FileName is the optional JSON config file, looked up in the working
// directory and then in the data directory.
const FileName = "ytbulk.json"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "YTBULK_"

// Duration is a time.Duration that reads "30s" style strings from JSON.
// Plain numbers are taken as nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration must be a string or integer: %s", b)
	}
	*d = Duration(n)
	return nil
}

// Config holds all application configuration.
type Config struct {
	// DataDir holds credentials.json and token.json.
	DataDir string `json:"data_dir"`
	// CacheDir holds downloaded thumbnails (default: DataDir/thumbnail_cache).
	CacheDir string `json:"cache_dir"`
	// BackupPath is the default catalog backup file.
	BackupPath string `json:"backup_path"`

	// CallbackHost is the loopback address the OAuth listener binds.
	CallbackHost string `json:"callback_host"`
	// CallbackBasePort is the first port probed for the OAuth listener.
	CallbackBasePort int `json:"callback_base_port"`
	// PortAttempts bounds the port probe.
	PortAttempts int `json:"port_attempts"`
	// AuthTimeout bounds the wait for the browser callback (0 = no limit).
	AuthTimeout Duration `json:"auth_timeout"`

	// MaxResults caps a channel listing.
	MaxResults int `json:"max_results"`
	// Locale such as "en-US", used for category region and language.
	Locale string `json:"locale"`
	// DailyQuota is the project's Data API quota, for usage warnings.
	DailyQuota int `json:"daily_quota"`

	// HTTPTimeout applies to thumbnail and token requests.
	HTTPTimeout Duration `json:"http_timeout"`
	// ThumbnailRPS limits thumbnail downloads per second.
	ThumbnailRPS float64 `json:"thumbnail_rps"`
	// DataAPIRPS limits Data API requests per second.
	DataAPIRPS float64 `json:"data_api_rps"`

	// MaxRetries is the maximum number of retries for transient failures.
	MaxRetries int `json:"max_retries"`
	// InitialBackoff is the initial backoff duration for retries.
	InitialBackoff Duration `json:"initial_backoff"`
	// MaxBackoff is the maximum backoff duration for retries.
	MaxBackoff Duration `json:"max_backoff"`
	// BackoffMultiplier is the multiplier for exponential backoff (must be > 1).
	BackoffMultiplier float64 `json:"backoff_multiplier"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:           defaultDataDir(),
		BackupPath:        "videos_backup.json",
		CallbackHost:      "127.0.0.1",
		CallbackBasePort:  5000,
		PortAttempts:      100,
		AuthTimeout:       Duration(5 * time.Minute),
		MaxResults:        200,
		Locale:            localeFromEnv(),
		DailyQuota:        10000,
		HTTPTimeout:       Duration(30 * time.Second),
		ThumbnailRPS:      10,
		DataAPIRPS:        5,
		MaxRetries:        3,
		InitialBackoff:    Duration(500 * time.Millisecond),
		MaxBackoff:        Duration(10 * time.Second),
		BackoffMultiplier: 2.0,
		LogLevel:          "info",
	}
}

// Load builds the configuration. Priority: env vars (including a .env
// file) > config file > defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	if dir := os.Getenv(EnvPrefix + "DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}

	if err := cfg.loadFromFile(FileName, filepath.Join(cfg.DataDir, FileName)); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads the first of paths that exists.
func (c *Config) loadFromFile(paths ...string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}
	return os.ErrNotExist
}

// loadFromEnv overrides config with YTBULK_* environment variables.
func (c *Config) loadFromEnv() error {
	strs := map[string]*string{
		"DATA_DIR":      &c.DataDir,
		"CACHE_DIR":     &c.CacheDir,
		"BACKUP_PATH":   &c.BackupPath,
		"CALLBACK_HOST": &c.CallbackHost,
		"LOCALE":        &c.Locale,
		"LOG_LEVEL":     &c.LogLevel,
	}
	ints := map[string]*int{
		"CALLBACK_BASE_PORT": &c.CallbackBasePort,
		"PORT_ATTEMPTS":      &c.PortAttempts,
		"MAX_RESULTS":        &c.MaxResults,
		"DAILY_QUOTA":        &c.DailyQuota,
		"MAX_RETRIES":        &c.MaxRetries,
	}
	floats := map[string]*float64{
		"THUMBNAIL_RPS":      &c.ThumbnailRPS,
		"DATA_API_RPS":       &c.DataAPIRPS,
		"BACKOFF_MULTIPLIER": &c.BackoffMultiplier,
	}
	durations := map[string]*Duration{
		"AUTH_TIMEOUT":    &c.AuthTimeout,
		"HTTP_TIMEOUT":    &c.HTTPTimeout,
		"INITIAL_BACKOFF": &c.InitialBackoff,
		"MAX_BACKOFF":     &c.MaxBackoff,
	}

	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	for key, dst := range ints {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}
	for key, dst := range floats {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = f
		}
	}
	for key, dst := range durations {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = Duration(d)
		}
	}
	return nil
}

func (c *Config) applyDerived() {
	if c.CacheDir == "" && c.DataDir != "" {
		c.CacheDir = filepath.Join(c.DataDir, "thumbnail_cache")
	}
}

// Validate checks that configuration values are valid and consistent.
// It returns an error if any configuration value is invalid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.CallbackHost == "" {
		return fmt.Errorf("callback_host must be set")
	}
	if c.CallbackBasePort < 1 || c.CallbackBasePort > 65535 {
		return fmt.Errorf("callback_base_port must be between 1 and 65535")
	}
	if c.PortAttempts < 1 {
		return fmt.Errorf("port_attempts must be positive")
	}
	if c.CallbackBasePort+c.PortAttempts-1 > 65535 {
		return fmt.Errorf("callback_base_port + port_attempts exceeds 65535")
	}
	if c.AuthTimeout < 0 {
		return fmt.Errorf("auth_timeout must be non-negative")
	}
	if c.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	if c.ThumbnailRPS < 0 || c.DataAPIRPS < 0 {
		return fmt.Errorf("rate limits must be non-negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	if c.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be > 1")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// RetryConfig returns the retry policy for remote calls.
func (c *Config) RetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:     c.MaxRetries,
		InitialBackoff: time.Duration(c.InitialBackoff),
		MaxBackoff:     time.Duration(c.MaxBackoff),
		Multiplier:     c.BackoffMultiplier,
		JitterFraction: 0.2,
	}
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level %q must be debug, info, warn or error", s)
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ytbulk")
	}
	return ".ytbulk"
}

// localeFromEnv maps POSIX locale variables ("pt_BR.UTF-8") to "pt-BR".
func localeFromEnv() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		v, _, _ = strings.Cut(v, ".")
		v, _, _ = strings.Cut(v, "@")
		if v == "C" || v == "POSIX" {
			return ""
		}
		return strings.ReplaceAll(v, "_", "-")
	}
	return ""
}
