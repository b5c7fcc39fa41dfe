package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashtags/hashtag-timeline/internal/models"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	StorageFile  = "file"
	StorageAzure = "azure"
	StorageRedis = "redis"
)

// ConfigurationError reports missing or invalid settings. It is fatal at startup.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string `yaml:"port"`
	Debug bool   `yaml:"debug"`

	// Twitter app credentials
	ConsumerKey       string `yaml:"consumer_key"`
	ConsumerSecret    string `yaml:"consumer_secret"`
	AccessToken       string `yaml:"access_token"`
	AccessTokenSecret string `yaml:"access_token_secret"`
	CallbackURL       string `yaml:"callback_url"`
	APIBaseURL        string `yaml:"api_base_url"`

	// Search
	SearchQuery      string `yaml:"search_query"`
	SearchResultType string `yaml:"search_result_type"`
	SearchCount      int    `yaml:"search_count"`

	// Ingestion pacing
	PollInterval       time.Duration `yaml:"poll_interval"`
	EmitDelay          time.Duration `yaml:"emit_delay"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	AuthMaxAttempts    int           `yaml:"auth_max_attempts"`
	AuthInitialBackoff time.Duration `yaml:"auth_initial_backoff"`
	TimelineCapacity   int           `yaml:"timeline_capacity"`

	// Storage configuration
	StorageBackend   string `yaml:"storage_backend"`
	StoragePath      string `yaml:"storage_path"`
	StorageAccount   string `yaml:"azure_storage_account"`
	StorageContainer string `yaml:"azure_storage_container"`
	RedisURL         string `yaml:"redis_url"`
	RedisKeyPrefix   string `yaml:"redis_key_prefix"`

	// Media fetching
	MediaFetchRPS   float64 `yaml:"media_fetch_rps"`
	MediaFetchBurst int     `yaml:"media_fetch_burst"`

	// Schedules (cron with seconds, empty disables)
	ArchiveSchedule string `yaml:"archive_schedule"`
	DigestSchedule  string `yaml:"digest_schedule"`

	// Notification configuration
	TeamsWebhookURL   string `yaml:"teams_webhook_url"`
	NotificationEmail string `yaml:"notification_email"`
	SMTPHost          string `yaml:"smtp_host"`
	SMTPPort          int    `yaml:"smtp_port"`
	SMTPUsername      string `yaml:"smtp_username"`
	SMTPPassword      string `yaml:"smtp_password"`
}

// Defaults returns a Config with every optional setting populated
func Defaults() *Config {
	return &Config{
		Port:               "8080",
		APIBaseURL:         "https://api.twitter.com",
		SearchResultType:   string(models.ResultMixed),
		SearchCount:        100,
		PollInterval:       10 * time.Second,
		EmitDelay:          500 * time.Millisecond,
		RequestTimeout:     15 * time.Second,
		AuthMaxAttempts:    5,
		AuthInitialBackoff: time.Second,
		TimelineCapacity:   30,
		StorageBackend:     StorageFile,
		StoragePath:        "./data",
		StorageContainer:   "timeline",
		RedisKeyPrefix:     "hashtags:",
		MediaFetchRPS:      10,
		MediaFetchBurst:    5,
		SMTPPort:           587,
	}
}

// Load loads configuration from an optional YAML file (CONFIG_FILE) and
// environment variables. Environment variables win over file values.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Debug = getBoolEnv("DEBUG", c.Debug)

	c.ConsumerKey = getEnv("TWITTER_CONSUMER_KEY", c.ConsumerKey)
	c.ConsumerSecret = getEnv("TWITTER_CONSUMER_SECRET", c.ConsumerSecret)
	c.AccessToken = getEnv("TWITTER_ACCESS_TOKEN", c.AccessToken)
	c.AccessTokenSecret = getEnv("TWITTER_ACCESS_TOKEN_SECRET", c.AccessTokenSecret)
	c.CallbackURL = getEnv("TWITTER_CALLBACK_URL", c.CallbackURL)
	c.APIBaseURL = strings.TrimRight(getEnv("TWITTER_API_BASE_URL", c.APIBaseURL), "/")

	c.SearchQuery = getEnv("SEARCH_QUERY", c.SearchQuery)
	c.SearchResultType = getEnv("SEARCH_RESULT_TYPE", c.SearchResultType)
	c.SearchCount = getIntEnv("SEARCH_COUNT", c.SearchCount)

	c.PollInterval = getDurationEnv("POLL_INTERVAL", c.PollInterval)
	c.EmitDelay = getDurationEnv("EMIT_DELAY", c.EmitDelay)
	c.RequestTimeout = getDurationEnv("REQUEST_TIMEOUT", c.RequestTimeout)
	c.AuthMaxAttempts = getIntEnv("AUTH_MAX_ATTEMPTS", c.AuthMaxAttempts)
	c.AuthInitialBackoff = getDurationEnv("AUTH_INITIAL_BACKOFF", c.AuthInitialBackoff)
	c.TimelineCapacity = getIntEnv("TIMELINE_CAPACITY", c.TimelineCapacity)

	c.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", c.StorageBackend))
	c.StoragePath = getEnv("STORAGE_PATH", c.StoragePath)
	c.StorageAccount = getEnv("AZURE_STORAGE_ACCOUNT", c.StorageAccount)
	c.StorageContainer = getEnv("AZURE_STORAGE_CONTAINER", c.StorageContainer)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.RedisKeyPrefix = getEnv("REDIS_KEY_PREFIX", c.RedisKeyPrefix)

	c.MediaFetchRPS = getFloatEnv("MEDIA_FETCH_RPS", c.MediaFetchRPS)
	c.MediaFetchBurst = getIntEnv("MEDIA_FETCH_BURST", c.MediaFetchBurst)

	c.ArchiveSchedule = getEnv("ARCHIVE_SCHEDULE", c.ArchiveSchedule)
	c.DigestSchedule = getEnv("DIGEST_SCHEDULE", c.DigestSchedule)

	c.TeamsWebhookURL = getEnv("TEAMS_WEBHOOK_URL", c.TeamsWebhookURL)
	c.NotificationEmail = getEnv("NOTIFICATION_EMAIL", c.NotificationEmail)
	c.SMTPHost = getEnv("SMTP_HOST", c.SMTPHost)
	c.SMTPPort = getIntEnv("SMTP_PORT", c.SMTPPort)
	c.SMTPUsername = getEnv("SMTP_USERNAME", c.SMTPUsername)
	c.SMTPPassword = getEnv("SMTP_PASSWORD", c.SMTPPassword)
}

func (c *Config) validate() error {
	var problems []string

	if c.ConsumerKey == "" || c.ConsumerSecret == "" {
		problems = append(problems, "TWITTER_CONSUMER_KEY and TWITTER_CONSUMER_SECRET are required")
	}

	if strings.TrimSpace(c.SearchQuery) == "" {
		problems = append(problems, "SEARCH_QUERY is required")
	}

	if _, err := models.ParseResultType(c.SearchResultType); err != nil {
		problems = append(problems, "SEARCH_RESULT_TYPE must be 'mixed', 'recent' or 'popular'")
	}

	if c.SearchCount < 1 || c.SearchCount > 100 {
		problems = append(problems, "SEARCH_COUNT must be between 1 and 100")
	}

	if c.PollInterval <= 0 || c.RequestTimeout <= 0 || c.EmitDelay < 0 {
		problems = append(problems, "POLL_INTERVAL and REQUEST_TIMEOUT must be positive, EMIT_DELAY must not be negative")
	}

	if c.AuthMaxAttempts < 1 {
		problems = append(problems, "AUTH_MAX_ATTEMPTS must be at least 1")
	}

	if c.TimelineCapacity < 1 {
		problems = append(problems, "TIMELINE_CAPACITY must be at least 1")
	}

	switch c.StorageBackend {
	case StorageFile:
		if c.StoragePath == "" {
			problems = append(problems, "STORAGE_PATH is required for the file backend")
		}
	case StorageAzure:
		if c.StorageAccount == "" {
			problems = append(problems, "AZURE_STORAGE_ACCOUNT is required for the azure backend")
		}
	case StorageRedis:
		if c.RedisURL == "" {
			problems = append(problems, "REDIS_URL is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			problems = append(problems, "SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

// IsConfigurationError reports whether err is a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// Credentials returns the app credentials as a value object
func (c *Config) Credentials() models.Credentials {
	return models.Credentials{
		ConsumerKey:       c.ConsumerKey,
		ConsumerSecret:    c.ConsumerSecret,
		AccessToken:       c.AccessToken,
		AccessTokenSecret: c.AccessTokenSecret,
		CallbackURL:       c.CallbackURL,
	}
}

// ResultType returns the validated search result type
func (c *Config) ResultType() models.ResultType {
	rt, err := models.ParseResultType(c.SearchResultType)
	if err != nil {
		return models.ResultMixed
	}
	return rt
}

// NotificationsEnabled reports whether any notification channel is configured
func (c *Config) NotificationsEnabled() bool {
	return c.TeamsWebhookURL != "" || c.NotificationEmail != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
