package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "LVSCRAPER_"

// Config holds all configuration options for the LinkedIn video crawler
type Config struct {
	LinkedIn  LinkedInConfig  `yaml:"linkedin" json:"linkedin"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Download  DownloadConfig  `yaml:"download" json:"download"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Session   SessionConfig   `yaml:"session" json:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// LinkedInConfig holds platform endpoint and account settings
type LinkedInConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	Username  string        `yaml:"username" json:"username"`
	Password  string        `yaml:"password" json:"-"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// SearchConfig controls pagination of the search endpoint.
// A negative Limit means unbounded.
type SearchConfig struct {
	Keywords               string        `yaml:"keywords" json:"keywords"`
	Limit                  int           `yaml:"limit" json:"limit"`
	Offset                 int           `yaml:"offset" json:"offset"`
	PageSize               int           `yaml:"page_size" json:"page_size"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" json:"max_consecutive_failures"`
	FailureDelay           time.Duration `yaml:"failure_delay" json:"failure_delay"`
}

// DownloadConfig holds the duration window (seconds, inclusive) and fan-out bound
type DownloadConfig struct {
	MinDuration         int           `yaml:"min_duration" json:"min_duration"`
	MaxDuration         int           `yaml:"max_duration" json:"max_duration"`
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	SkipExisting        bool          `yaml:"skip_existing" json:"skip_existing"`
}

// StorageConfig locates the data directory and its contents
type StorageConfig struct {
	DataDir       string `yaml:"data_dir" json:"data_dir"`
	DownloadsDir  string `yaml:"downloads_dir" json:"downloads_dir"`
	SessionFile   string `yaml:"session_file" json:"session_file"`
	WriteMetadata bool   `yaml:"write_metadata" json:"write_metadata"`
}

// SessionConfig selects where authenticated sessions are persisted
type SessionConfig struct {
	Backend    string `yaml:"backend" json:"backend"`
	Passphrase string `yaml:"passphrase" json:"-"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// RetryConfig controls per-request retries of transient failures
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Format string `yaml:"format" json:"format"`
	Color  bool   `yaml:"color" json:"color"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LinkedIn: LinkedInConfig{
			BaseURL:   "https://www.linkedin.com",
			UserAgent: "LinkedIn/8.8.1 CFNetwork/711.3.18 Darwin/14.0.0",
			Timeout:   30 * time.Second,
		},
		Search: SearchConfig{
			Keywords:               "#video",
			Limit:                  -1,
			Offset:                 0,
			PageSize:               49,
			MaxConsecutiveFailures: 5,
			FailureDelay:           2 * time.Second,
		},
		Download: DownloadConfig{
			MinDuration:         0,
			MaxDuration:         60,
			ConcurrentDownloads: 4,
			Timeout:             5 * time.Minute,
		},
		Storage: StorageConfig{
			DataDir:       "./data",
			WriteMetadata: true,
		},
		Session: SessionConfig{
			Backend: "file",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         5,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Color:  true,
		},
	}
}

// SessionFilePath returns the session file, defaulting to <data>/cookie.json
func (c *Config) SessionFilePath() string {
	if c.Storage.SessionFile != "" {
		return c.Storage.SessionFile
	}
	return filepath.Join(c.Storage.DataDir, "cookie.json")
}

// DownloadsPath returns the downloads directory, defaulting to <data>/downloads
func (c *Config) DownloadsPath() string {
	if c.Storage.DownloadsDir != "" {
		return c.Storage.DownloadsDir
	}
	return filepath.Join(c.Storage.DataDir, "downloads")
}

// CheckpointDir returns where crawl checkpoints live
func (c *Config) CheckpointDir() string {
	return filepath.Join(c.Storage.DataDir, "checkpoints")
}

// LoadFromEnv loads configuration from LVSCRAPER_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString(&c.LinkedIn.BaseURL, "BASE_URL")
	setString(&c.LinkedIn.UserAgent, "USER_AGENT")
	setString(&c.LinkedIn.Username, "USERNAME")
	setString(&c.LinkedIn.Password, "PASSWORD")
	setString(&c.Search.Keywords, "KEYWORDS")
	setString(&c.Storage.DataDir, "DATA_DIR")
	setString(&c.Storage.DownloadsDir, "DOWNLOADS_DIR")
	setString(&c.Storage.SessionFile, "SESSION_FILE")
	setString(&c.Session.Backend, "SESSION_BACKEND")
	setString(&c.Session.Passphrase, "SESSION_PASSPHRASE")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.File, "LOG_FILE")
	setString(&c.Logging.Format, "LOG_FORMAT")

	errs = append(errs,
		setInt(&c.Search.Limit, "LIMIT"),
		setInt(&c.Search.Offset, "OFFSET"),
		setInt(&c.Search.PageSize, "PAGE_SIZE"),
		setInt(&c.Download.MinDuration, "MIN_DURATION"),
		setInt(&c.Download.MaxDuration, "MAX_DURATION"),
		setInt(&c.Download.ConcurrentDownloads, "CONCURRENT_DOWNLOADS"),
		setInt(&c.RateLimit.RequestsPerMinute, "REQUESTS_PER_MINUTE"),
		setInt(&c.Retry.MaxAttempts, "RETRY_ATTEMPTS"),
	)

	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = n
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".lvscraper.yaml",
		".lvscraper.yml",
		filepath.Join(home, ".config", "lvscraper", "config.yaml"),
		filepath.Join(home, ".lvscraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.LinkedIn.BaseURL == "" {
		errs = append(errs, errors.New("linkedin base url is required"))
	}
	if c.LinkedIn.Timeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.Search.PageSize <= 0 || c.Search.PageSize > 49 {
		errs = append(errs, errors.New("page size must be between 1 and 49"))
	}
	if c.Search.Offset < 0 {
		errs = append(errs, errors.New("offset cannot be negative"))
	}
	if c.Search.MaxConsecutiveFailures <= 0 {
		errs = append(errs, errors.New("max consecutive failures must be positive"))
	}

	if c.Download.MinDuration < 0 {
		errs = append(errs, errors.New("min duration cannot be negative"))
	}
	if c.Download.MaxDuration < c.Download.MinDuration {
		errs = append(errs, errors.New("max duration must not be below min duration"))
	}
	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}

	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("data directory is required"))
	}

	switch strings.ToLower(c.Session.Backend) {
	case "file", "keyring":
	case "encrypted":
		if c.Session.Passphrase == "" {
			errs = append(errs, errors.New("encrypted session backend requires a passphrase"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.Session.Backend))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry attempts must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags the user actually set should be present in the map.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["username"].(string); ok && v != "" {
		c.LinkedIn.Username = v
	}
	if v, ok := flags["keywords"].(string); ok {
		c.Search.Keywords = v
	}
	if v, ok := flags["limit"].(int); ok {
		c.Search.Limit = v
	}
	if v, ok := flags["offset"].(int); ok {
		c.Search.Offset = v
	}
	if v, ok := flags["page-size"].(int); ok && v > 0 {
		c.Search.PageSize = v
	}
	if v, ok := flags["min-duration"].(int); ok {
		c.Download.MinDuration = v
	}
	if v, ok := flags["max-duration"].(int); ok {
		c.Download.MaxDuration = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Download.ConcurrentDownloads = v
	}
	if v, ok := flags["skip-existing"].(bool); ok {
		c.Download.SkipExisting = v
	}
	if v, ok := flags["data-dir"].(string); ok && v != "" {
		c.Storage.DataDir = v
	}
	if v, ok := flags["session-backend"].(string); ok && v != "" {
		c.Session.Backend = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".lvscraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
