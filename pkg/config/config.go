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

// Crawl modes
const (
	ModeTimeline = "timeline"
	ModeSearch   = "search"
)

// Config holds all configuration options for the tracker
type Config struct {
	// Crawl loop tuning
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Upstream platform endpoints
	Platform PlatformConfig `yaml:"platform" json:"platform"`

	Proxy    ProxyConfig    `yaml:"proxy" json:"proxy"`
	Output   OutputConfig   `yaml:"output" json:"output"`
	Progress ProgressConfig `yaml:"progress" json:"progress"`

	// Optional progress mirror
	Redis RedisConfig `yaml:"redis" json:"redis"`

	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// CrawlConfig holds the dispatcher and pagination settings
type CrawlConfig struct {
	Mode              string        `yaml:"mode" json:"mode"`
	CredentialsFile   string        `yaml:"credentials_file" json:"credentials_file"`
	Workers           int           `yaml:"workers" json:"workers"`
	RetryBudget       int           `yaml:"retry_budget" json:"retry_budget"`
	PageDelay         time.Duration `yaml:"page_delay" json:"page_delay"`
	TransientDelay    time.Duration `yaml:"transient_delay" json:"transient_delay"`
	RateLimitPadding  time.Duration `yaml:"rate_limit_padding" json:"rate_limit_padding"`
	RateLimitFallback time.Duration `yaml:"rate_limit_fallback" json:"rate_limit_fallback"`
	LanePollInterval  time.Duration `yaml:"lane_poll_interval" json:"lane_poll_interval"`
	RestartDelay      time.Duration `yaml:"restart_delay" json:"restart_delay"`
	TimelinePageSize  int           `yaml:"timeline_page_size" json:"timeline_page_size"`
	SearchPageSize    int           `yaml:"search_page_size" json:"search_page_size"`
}

// PlatformConfig holds API endpoints and client pacing
type PlatformConfig struct {
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	TokenURL          string        `yaml:"token_url" json:"token_url"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	TokenRetries      int           `yaml:"token_retries" json:"token_retries"`
}

// ProxyConfig holds proxy list and liveness settings
type ProxyConfig struct {
	File                string        `yaml:"file" json:"file"`
	CheckURL            string        `yaml:"check_url" json:"check_url"`
	CheckTimeout        time.Duration `yaml:"check_timeout" json:"check_timeout"`
	Precheck            bool          `yaml:"precheck" json:"precheck"`
	PrecheckConcurrency int           `yaml:"precheck_concurrency" json:"precheck_concurrency"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
}

// ProgressConfig locates the progress file
type ProgressConfig struct {
	File   string `yaml:"file" json:"file"`
	Backup bool   `yaml:"backup" json:"backup"`
}

// RedisConfig configures the progress mirror. An empty Addr disables it.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			Mode:              ModeSearch,
			CredentialsFile:   "./config.json",
			Workers:           8,
			RetryBudget:       5,
			PageDelay:         1 * time.Second,
			TransientDelay:    10 * time.Second,
			RateLimitPadding:  10 * time.Second,
			RateLimitFallback: 60 * time.Second,
			LanePollInterval:  5 * time.Second,
			RestartDelay:      5 * time.Second,
			TimelinePageSize:  200,
			SearchPageSize:    100,
		},
		Platform: PlatformConfig{
			BaseURL:           "https://api.twitter.com",
			TokenURL:          "https://api.twitter.com/oauth2/token",
			UserAgent:         "twtracker/1.0",
			RequestTimeout:    30 * time.Second,
			RequestsPerSecond: 1.0,
			TokenRetries:      3,
		},
		Proxy: ProxyConfig{
			File:                "",
			CheckURL:            "https://api.twitter.com/1.1/help/configuration.json",
			CheckTimeout:        5 * time.Second,
			Precheck:            true,
			PrecheckConcurrency: 16,
		},
		Output: OutputConfig{
			BaseDirectory: "./data/",
		},
		Progress: ProgressConfig{
			File:   "",
			Backup: true,
		},
		Redis: RedisConfig{
			KeyPrefix: "twtracker",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    50,
			MaxBackups: 10,
			MaxAge:     0,
			Compress:   false,
		},
	}
}

// ProgressPath returns the progress file, defaulting to users.json or search.json
func (c *Config) ProgressPath() string {
	if c.Progress.File != "" {
		return c.Progress.File
	}
	if c.Crawl.Mode == ModeTimeline {
		return "users.json"
	}
	return "search.json"
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	setString("TWTRACKER_MODE", &c.Crawl.Mode)
	setString("TWTRACKER_CREDENTIALS_FILE", &c.Crawl.CredentialsFile)
	setInt("TWTRACKER_WORKERS", &c.Crawl.Workers)
	setInt("TWTRACKER_RETRY_BUDGET", &c.Crawl.RetryBudget)
	setDuration("TWTRACKER_TRANSIENT_DELAY", &c.Crawl.TransientDelay)
	setDuration("TWTRACKER_LANE_POLL_INTERVAL", &c.Crawl.LanePollInterval)

	setString("TWTRACKER_BASE_URL", &c.Platform.BaseURL)
	setString("TWTRACKER_TOKEN_URL", &c.Platform.TokenURL)
	setDuration("TWTRACKER_REQUEST_TIMEOUT", &c.Platform.RequestTimeout)

	setString("TWTRACKER_PROXIES_FILE", &c.Proxy.File)
	setDuration("TWTRACKER_PROXY_CHECK_TIMEOUT", &c.Proxy.CheckTimeout)
	if v := os.Getenv("TWTRACKER_PROXY_PRECHECK"); v != "" {
		c.Proxy.Precheck = strings.ToLower(v) == "true"
	}

	setString("TWTRACKER_OUTPUT_DIR", &c.Output.BaseDirectory)
	setString("TWTRACKER_PROGRESS_FILE", &c.Progress.File)

	setString("TWTRACKER_REDIS_ADDR", &c.Redis.Addr)
	setString("TWTRACKER_REDIS_PASSWORD", &c.Redis.Password)
	setInt("TWTRACKER_REDIS_DB", &c.Redis.DB)

	setString("TWTRACKER_METRICS_ADDR", &c.Metrics.Addr)

	setString("TWTRACKER_LOG_LEVEL", &c.Logging.Level)
	setString("TWTRACKER_LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
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

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".twtracker.yaml",
		".twtracker.yml",
		filepath.Join(home, ".config", "twtracker", "config.yaml"),
		filepath.Join(home, ".config", "twtracker", "config.yml"),
		filepath.Join(home, ".twtracker.yaml"),
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

	if c.Crawl.Mode != ModeTimeline && c.Crawl.Mode != ModeSearch {
		errs = append(errs, fmt.Errorf("crawl mode must be %q or %q, got %q", ModeTimeline, ModeSearch, c.Crawl.Mode))
	}
	if c.Crawl.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Crawl.RetryBudget <= 0 {
		errs = append(errs, errors.New("retry budget must be positive"))
	}
	if c.Crawl.PageDelay < 0 {
		errs = append(errs, errors.New("page delay cannot be negative"))
	}
	if c.Crawl.TransientDelay < 0 {
		errs = append(errs, errors.New("transient delay cannot be negative"))
	}
	if c.Crawl.RateLimitFallback <= 0 {
		errs = append(errs, errors.New("rate limit fallback must be positive"))
	}
	if c.Crawl.LanePollInterval <= 0 {
		errs = append(errs, errors.New("lane poll interval must be positive"))
	}
	if c.Crawl.TimelinePageSize <= 0 || c.Crawl.TimelinePageSize > 200 {
		errs = append(errs, errors.New("timeline page size must be between 1 and 200"))
	}
	if c.Crawl.SearchPageSize <= 0 || c.Crawl.SearchPageSize > 100 {
		errs = append(errs, errors.New("search page size must be between 1 and 100"))
	}

	if c.Platform.BaseURL == "" {
		errs = append(errs, errors.New("platform base url is required"))
	}
	if c.Platform.TokenURL == "" {
		errs = append(errs, errors.New("platform token url is required"))
	}
	if c.Platform.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.Platform.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests per second cannot be negative"))
	}

	if c.Proxy.CheckTimeout <= 0 {
		errs = append(errs, errors.New("proxy check timeout must be positive"))
	}
	if c.Proxy.PrecheckConcurrency <= 0 {
		errs = append(errs, errors.New("proxy precheck concurrency must be positive"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if mode, ok := flags["mode"].(string); ok && mode != "" {
		c.Crawl.Mode = mode
	}
	if creds, ok := flags["credentials"].(string); ok && creds != "" {
		c.Crawl.CredentialsFile = creds
	}
	if proxies, ok := flags["proxies"].(string); ok && proxies != "" {
		c.Proxy.File = proxies
	}
	if noPrecheck, ok := flags["no-precheck"].(bool); ok && noPrecheck {
		c.Proxy.Precheck = false
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if progress, ok := flags["progress"].(string); ok && progress != "" {
		c.Progress.File = progress
	}
	if workers, ok := flags["workers"].(int); ok && workers > 0 {
		c.Crawl.Workers = workers
	}
	if addr, ok := flags["metrics-addr"].(string); ok && addr != "" {
		c.Metrics.Addr = addr
	}
	if addr, ok := flags["redis-addr"].(string); ok && addr != "" {
		c.Redis.Addr = addr
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile, ok := flags["log-file"].(string); ok && logFile != "" {
		c.Logging.File = logFile
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".twtracker.env"))

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
