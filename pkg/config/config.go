package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	igerrors "igsync/pkg/errors"
)

// Config holds all configuration options for igsync
type Config struct {
	Logging    LoggingConfig   `yaml:"logging" json:"logging" envPrefix:"LOG_"`
	RateLimits RateLimitConfig `yaml:"rate_limits" json:"rate_limits" envPrefix:"RATE_"`
	Airtable   AirtableConfig  `yaml:"airtable" json:"airtable" envPrefix:"AIRTABLE_"`
	Instagram  InstagramConfig `yaml:"instagram" json:"instagram" envPrefix:"INSTAGRAM_"`
	Retry      RetryConfig     `yaml:"retry" json:"retry" envPrefix:"RETRY_"`
	Sync       SyncConfig      `yaml:"sync" json:"sync" envPrefix:"SYNC_"`
	Journal    JournalConfig   `yaml:"journal" json:"journal" envPrefix:"JOURNAL_"`
	Server     ServerConfig    `yaml:"server" json:"server" envPrefix:"SERVER_"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	FilePath string `yaml:"file_path" json:"file_path" env:"FILE_PATH"`
	Level    string `yaml:"level" json:"level" env:"LEVEL"`
	// MaxSize is the rotation threshold in bytes.
	MaxSize     int64 `yaml:"max_size" json:"max_size" env:"MAX_SIZE"`
	BackupCount int   `yaml:"backup_count" json:"backup_count" env:"BACKUP_COUNT"`
	Console     bool  `yaml:"console" json:"console" env:"CONSOLE"`
}

// RateLimitConfig holds the external API throttles. Delays are in seconds.
type RateLimitConfig struct {
	RequestsPerMinute    int     `yaml:"requests_per_minute" json:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
	DelayBetweenAccounts float64 `yaml:"delay_between_accounts" json:"delay_between_accounts" env:"DELAY_BETWEEN_ACCOUNTS"`
	DelayBetweenPosts    float64 `yaml:"delay_between_posts" json:"delay_between_posts" env:"DELAY_BETWEEN_POSTS"`
	RedisURL             string  `yaml:"redis_url,omitempty" json:"redis_url,omitempty" env:"REDIS_URL"`
}

// AccountDelay returns delay_between_accounts as a duration
func (r RateLimitConfig) AccountDelay() time.Duration {
	return secondsToDuration(r.DelayBetweenAccounts)
}

// PostDelay returns delay_between_posts as a duration
func (r RateLimitConfig) PostDelay() time.Duration {
	return secondsToDuration(r.DelayBetweenPosts)
}

// AirtableConfig locates the backing store
type AirtableConfig struct {
	APIKey              string `yaml:"api_key" json:"api_key"`
	BaseID              string `yaml:"base_id" json:"base_id"`
	ActiveAccountsTable string `yaml:"active_accounts_table" json:"active_accounts_table"`
	ContentTable        string `yaml:"content_table,omitempty" json:"content_table,omitempty" env:"CONTENT_TABLE"`
	BaseURL             string `yaml:"base_url,omitempty" json:"base_url,omitempty" env:"BASE_URL"`
	// RequestsPerSecond throttles calls to the Airtable API itself.
	RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second" env:"REQUESTS_PER_SECOND"`
}

// InstagramConfig locates the RapidAPI Instagram proxy
type InstagramConfig struct {
	APIKey  string        `yaml:"api_key" json:"api_key"`
	Host    string        `yaml:"host" json:"host" env:"HOST"`
	BaseURL string        `yaml:"base_url,omitempty" json:"base_url,omitempty" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
}

// RetryConfig holds retry configuration shared by the fetcher and the store
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts" env:"MAX_ATTEMPTS"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay" env:"BASE_DELAY"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay" env:"MAX_DELAY"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier" env:"MULTIPLIER"`
	Jitter      float64       `yaml:"jitter" json:"jitter" env:"JITTER"`
}

// SyncConfig controls what a cycle does
type SyncConfig struct {
	ScrapeContent bool          `yaml:"scrape_content" json:"scrape_content" env:"SCRAPE_CONTENT"`
	MaxRecords    int           `yaml:"max_records" json:"max_records" env:"MAX_RECORDS"`
	MaxPostPages  int           `yaml:"max_post_pages" json:"max_post_pages" env:"MAX_POST_PAGES"`
	Interval      time.Duration `yaml:"interval" json:"interval" env:"INTERVAL"`
	CheckpointDir string        `yaml:"checkpoint_dir,omitempty" json:"checkpoint_dir,omitempty" env:"CHECKPOINT_DIR"`
}

// JournalConfig enables the Postgres run journal
type JournalConfig struct {
	DatabaseURL string `yaml:"database_url,omitempty" json:"database_url,omitempty" env:"DATABASE_URL"`
}

// ServerConfig configures the daemon status endpoint
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty" env:"ADDR"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			FilePath:    "",
			Level:       "info",
			MaxSize:     10 * 1024 * 1024,
			BackupCount: 5,
			Console:     true,
		},
		RateLimits: RateLimitConfig{
			RequestsPerMinute:    30,
			DelayBetweenAccounts: 2.0,
			DelayBetweenPosts:    1.0,
		},
		Airtable: AirtableConfig{
			ActiveAccountsTable: "Accounts",
			BaseURL:             "https://api.airtable.com/v0",
			RequestsPerSecond:   5,
		},
		Instagram: InstagramConfig{
			Host:    "instagram-scraper-api2.p.rapidapi.com",
			Timeout: 30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
			Jitter:      0.1,
		},
		Sync: SyncConfig{
			ScrapeContent: false,
			MaxRecords:    0,
			MaxPostPages:  5,
			Interval:      time.Hour,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// LoadFromEnv applies IGSYNC_* overrides, e.g. IGSYNC_LOG_LEVEL or
// IGSYNC_RATE_REQUESTS_PER_MINUTE. Unset variables leave values untouched.
func (c *Config) LoadFromEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: "IGSYNC_"}); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, resolving ${...}
// placeholders before decoding.
func (c *Config) LoadFromFile(path string, secrets SecretResolver) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &igerrors.ConfigError{Problems: []string{"cannot read " + path}, Err: err}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return &igerrors.ConfigError{Problems: []string{"malformed YAML in " + path}, Err: err}
	}
	if len(root.Content) == 0 {
		return nil
	}

	r := &placeholderResolver{secrets: secrets}
	r.walk(&root)
	if len(r.problems) > 0 {
		return &igerrors.ConfigError{Problems: r.problems}
	}

	if err := root.Decode(c); err != nil {
		return &igerrors.ConfigError{Problems: []string{"invalid values in " + path}, Err: err}
	}
	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"config.yaml",
		"config.yml",
		".igsync.yaml",
		".igsync.yml",
		filepath.Join(home, ".config", "igsync", "config.yaml"),
		filepath.Join(home, ".config", "igsync", "config.yml"),
		filepath.Join(home, ".igsync.yaml"),
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

	if c.Airtable.APIKey == "" {
		errs = append(errs, errors.New("airtable.api_key is required"))
	}
	if c.Airtable.BaseID == "" {
		errs = append(errs, errors.New("airtable.base_id is required"))
	}
	if c.Airtable.ActiveAccountsTable == "" {
		errs = append(errs, errors.New("airtable.active_accounts_table is required"))
	}
	if c.Airtable.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("airtable.requests_per_second must be positive"))
	}
	if c.Instagram.APIKey == "" {
		errs = append(errs, errors.New("instagram.api_key is required"))
	}
	if c.Instagram.Host == "" {
		errs = append(errs, errors.New("instagram.host is required"))
	}
	if c.Instagram.Timeout <= 0 {
		errs = append(errs, errors.New("instagram.timeout must be positive"))
	}

	if c.RateLimits.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("rate_limits.requests_per_minute must be positive"))
	}
	if c.RateLimits.DelayBetweenAccounts < 0 {
		errs = append(errs, errors.New("rate_limits.delay_between_accounts cannot be negative"))
	}
	if c.RateLimits.DelayBetweenPosts < 0 {
		errs = append(errs, errors.New("rate_limits.delay_between_posts cannot be negative"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry.multiplier must be >= 1"))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, errors.New("retry.jitter must be between 0 and 1"))
	}

	if c.Sync.MaxRecords < 0 {
		errs = append(errs, errors.New("sync.max_records cannot be negative"))
	}
	if c.Sync.MaxPostPages < 1 {
		errs = append(errs, errors.New("sync.max_post_pages must be at least 1"))
	}
	if c.Sync.ScrapeContent && c.Airtable.ContentTable == "" {
		errs = append(errs, errors.New("airtable.content_table is required when sync.scrape_content is enabled"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "warning": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}
	if c.Logging.MaxSize < 0 || c.Logging.BackupCount < 0 {
		errs = append(errs, errors.New("logging.max_size and logging.backup_count cannot be negative"))
	}

	if len(errs) > 0 {
		problems := make([]string, 0, len(errs))
		for _, err := range errs {
			problems = append(problems, err.Error())
		}
		return &igerrors.ConfigError{Problems: problems, Err: errors.Join(errs...)}
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

// Masked returns a copy safe to print, with credentials shortened.
func (c *Config) Masked() *Config {
	cp := *c
	cp.Airtable.APIKey = maskSecret(c.Airtable.APIKey)
	cp.Instagram.APIKey = maskSecret(c.Instagram.APIKey)
	cp.Journal.DatabaseURL = maskSecret(c.Journal.DatabaseURL)
	cp.RateLimits.RedisURL = maskSecret(c.RateLimits.RedisURL)
	return &cp
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if rpm, ok := flags["requests-per-minute"].(int); ok && rpm > 0 {
		c.RateLimits.RequestsPerMinute = rpm
	}
	if maxRecords, ok := flags["max-records"].(int); ok && maxRecords > 0 {
		c.Sync.MaxRecords = maxRecords
	}
	if maxPages, ok := flags["max-post-pages"].(int); ok && maxPages > 0 {
		c.Sync.MaxPostPages = maxPages
	}
	if content, ok := flags["scrape-content"].(bool); ok {
		c.Sync.ScrapeContent = content
	}
	if interval, ok := flags["interval"].(time.Duration); ok && interval > 0 {
		c.Sync.Interval = interval
	}
	if addr, ok := flags["addr"].(string); ok && addr != "" {
		c.Server.Addr = addr
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Command line flags > IGSYNC_* environment > Config file > Defaults.
// .env files only feed the environment used for ${VAR} placeholders and overrides.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	return LoadWithSecrets(configPath, flags, nil)
}

// LoadWithSecrets is Load with a resolver for ${secret:NAME} placeholders.
func LoadWithSecrets(configPath string, flags map[string]interface{}, secrets SecretResolver) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igsync.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath, secrets); err != nil {
		return nil, err
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, &igerrors.ConfigError{Problems: []string{"invalid IGSYNC_* override"}, Err: err}
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
