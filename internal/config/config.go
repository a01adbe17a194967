package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Service names shared by config keys, routes and stored tokens.
const (
	ServiceGoogleFit  = "google-fit"
	ServiceDexcom     = "dexcom"
	ServiceCapitalOne = "capitalone"
	ServiceQuickBooks = "quickbooks"
)

// ProviderConfig holds the OAuth client of one external service.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	BaseURL      string
}

// Enabled reports whether the provider has client credentials.
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type Config struct {
	// HTTP Server
	Port               string
	APISecretKey       string
	StateSecret        string
	DashboardURL       string
	PublicBaseURL      string
	RateLimitPerMinute int

	// Database
	SQLiteDBPath string
	QueryTimeout time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Sync
	SyncInterval    time.Duration
	SyncConcurrency int
	SyncMaxRetries  int
	ProviderTimeout time.Duration

	// Google Sheets budget export
	SpreadsheetID   string
	BudgetSheetName string

	// Logging
	LogLevel  string
	LogFormat string

	Providers map[string]ProviderConfig
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		APISecretKey:       getEnv("API_SECRET_KEY", ""),
		StateSecret:        getEnv("STATE_SECRET", ""),
		DashboardURL:       getEnv("DASHBOARD_URL", "http://localhost:3000"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/lifedash.db"),
		QueryTimeout: getEnvDuration("QUERY_TIMEOUT", 5*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "lifedash"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_requests"),

		SyncInterval:    getEnvDuration("SYNC_INTERVAL", time.Hour),
		SyncConcurrency: getEnvInt("SYNC_CONCURRENCY", 4),
		SyncMaxRetries:  getEnvInt("SYNC_MAX_RETRIES", 3),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second),

		SpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		BudgetSheetName: getEnv("GOOGLE_BUDGET_SHEET_NAME", "Budget"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	cfg.Providers = map[string]ProviderConfig{
		ServiceGoogleFit:  loadProvider(cfg.PublicBaseURL, "GOOGLE_FIT", ServiceGoogleFit, ""),
		ServiceDexcom:     loadProvider(cfg.PublicBaseURL, "DEXCOM", ServiceDexcom, "https://sandbox-api.dexcom.com"),
		ServiceCapitalOne: loadProvider(cfg.PublicBaseURL, "CAPITALONE", ServiceCapitalOne, "https://api.capitalone.com"),
		ServiceQuickBooks: loadProvider(cfg.PublicBaseURL, "QUICKBOOKS", ServiceQuickBooks, "https://sandbox-quickbooks.api.intuit.com"),
	}

	return cfg
}

func loadProvider(publicBaseURL, prefix, service, defaultBaseURL string) ProviderConfig {
	return ProviderConfig{
		ClientID:     getEnv(prefix+"_CLIENT_ID", ""),
		ClientSecret: getEnv(prefix+"_CLIENT_SECRET", ""),
		RedirectURL:  getEnv(prefix+"_REDIRECT_URI", strings.TrimRight(publicBaseURL, "/")+"/api/auth/"+service+"/callback"),
		BaseURL:      getEnv(prefix+"_BASE_URL", defaultBaseURL),
	}
}

// Validate validates the configuration shared by every binary and returns an
// error listing every problem
func (c *Config) Validate() error {
	return joinErrors(c.validate())
}

// ValidateServer additionally requires the secrets the HTTP API relies on
func (c *Config) ValidateServer() error {
	errors := c.validate()

	if c.APISecretKey == "" {
		errors = append(errors, "API_SECRET_KEY is required")
	}
	if c.StateSecret == "" {
		errors = append(errors, "STATE_SECRET is required")
	} else if len(c.StateSecret) < 16 {
		errors = append(errors, "STATE_SECRET must be at least 16 characters")
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	return joinErrors(errors)
}

func (c *Config) validate() []string {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.QueryTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid query timeout %v: must be positive", c.QueryTimeout))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if u, err := url.Parse(c.DashboardURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid dashboard URL '%s': must be absolute", c.DashboardURL))
	}

	if c.SyncInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 minute", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	if c.SyncConcurrency < 1 || c.SyncConcurrency > 16 {
		errors = append(errors, fmt.Sprintf("invalid sync concurrency %d: must be between 1 and 16", c.SyncConcurrency))
	}
	if c.SyncMaxRetries < 0 || c.SyncMaxRetries > 10 {
		errors = append(errors, fmt.Sprintf("invalid sync max retries %d: must be between 0 and 10", c.SyncMaxRetries))
	}
	if c.ProviderTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid provider timeout %v: must be at least 1 second", c.ProviderTimeout))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	for name, p := range c.Providers {
		if (p.ClientID == "") != (p.ClientSecret == "") {
			errors = append(errors, fmt.Sprintf("provider %s: client id and client secret must be set together", name))
		}
		if p.Enabled() && p.RedirectURL == "" {
			errors = append(errors, fmt.Sprintf("provider %s: redirect URI is required", name))
		}
	}

	return errors
}

// EnabledProviders returns the names of providers with client credentials.
func (c *Config) EnabledProviders() []string {
	var names []string
	for _, name := range []string{ServiceGoogleFit, ServiceDexcom, ServiceCapitalOne, ServiceQuickBooks} {
		if c.Providers[name].Enabled() {
			names = append(names, name)
		}
	}
	return names
}

func joinErrors(errors []string) error {
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
