package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
// Values come from defaults, then an optional TOML file named by
// LEDGER_CONFIG, then environment variables.
type Config struct {
	// Server
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`

	// Remote finance API
	FinanceAPIURL string        `toml:"finance_api_url"`
	HTTPTimeout   time.Duration `toml:"http_timeout"`
	FetchTimeout  time.Duration `toml:"fetch_timeout"`

	// Resilience
	MaxRetries     int           `toml:"max_retries"`
	InitialBackoff time.Duration `toml:"initial_backoff"`
	MaxConcurrency int           `toml:"max_concurrency"`

	// Sessions / Auth
	SessionTTL   time.Duration `toml:"session_ttl"`
	JWTSecret    string        `toml:"jwt_secret"`
	JWTAccessTTL time.Duration `toml:"jwt_access_ttl"`

	// Observability
	OTLPEndpoint   string `toml:"otlp_endpoint"`
	TracingEnabled bool   `toml:"tracing_enabled"`

	// Broker (disabled when AMQPURL is empty)
	AMQPURL        string `toml:"amqp_url"`
	AMQPExchange   string `toml:"amqp_exchange"`
	AMQPRoutingKey string `toml:"amqp_routing_key"`
	EventBuffer    int    `toml:"event_buffer"`

	// Web client
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`

	// Ledger presentation
	UtilizationFloor float64 `toml:"utilization_floor"`
	DashboardRecent  int     `toml:"dashboard_recent"`
	IncomeRecent     int     `toml:"income_recent"`
	IncomeBuckets    int     `toml:"income_buckets"`
	ExpenseRecent    int     `toml:"expense_recent"`
	ExpenseBuckets   int     `toml:"expense_buckets"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:     8080,
		LogLevel: "info",

		FinanceAPIURL: "http://localhost:5000",
		HTTPTimeout:   10 * time.Second,
		FetchTimeout:  15 * time.Second,

		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxConcurrency: 50,

		SessionTTL:   24 * time.Hour,
		JWTSecret:    "ledger-default-dev-secret-change-me",
		JWTAccessTTL: 24 * time.Hour,

		OTLPEndpoint:   "localhost:4317",
		TracingEnabled: false,

		AMQPExchange:   "ledger.events",
		AMQPRoutingKey: "ledger.snapshot",
		EventBuffer:    256,

		UtilizationFloor: 3,
		DashboardRecent:  5,
		IncomeRecent:     10,
		IncomeBuckets:    5,
		ExpenseRecent:    6,
		ExpenseBuckets:   12,
	}
}

// Load builds the configuration and validates it.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("LEDGER_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the keys present in a TOML file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvInt("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.FinanceAPIURL = getEnv("FINANCE_API_URL", c.FinanceAPIURL)
	c.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", c.HTTPTimeout)
	c.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", c.FetchTimeout)

	c.MaxRetries = getEnvInt("MAX_RETRIES", c.MaxRetries)
	c.InitialBackoff = getEnvDuration("INITIAL_BACKOFF", c.InitialBackoff)
	c.MaxConcurrency = getEnvInt("MAX_CONCURRENCY", c.MaxConcurrency)

	c.SessionTTL = getEnvDuration("SESSION_TTL", c.SessionTTL)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTAccessTTL = getEnvDuration("JWT_ACCESS_TTL", c.JWTAccessTTL)

	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
	c.TracingEnabled = getEnvBool("TRACING_ENABLED", c.TracingEnabled)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPRoutingKey = getEnv("AMQP_ROUTING_KEY", c.AMQPRoutingKey)
	c.EventBuffer = getEnvInt("EVENT_BUFFER", c.EventBuffer)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = splitList(v)
	}

	c.UtilizationFloor = getEnvFloat("LEDGER_UTILIZATION_FLOOR", c.UtilizationFloor)
	c.DashboardRecent = getEnvInt("RECENT_LIMIT_DASHBOARD", c.DashboardRecent)
	c.IncomeRecent = getEnvInt("RECENT_LIMIT_INCOME", c.IncomeRecent)
	c.IncomeBuckets = getEnvInt("CHART_BUCKETS_INCOME", c.IncomeBuckets)
	c.ExpenseRecent = getEnvInt("RECENT_LIMIT_EXPENSE", c.ExpenseRecent)
	c.ExpenseBuckets = getEnvInt("CHART_BUCKETS_EXPENSE", c.ExpenseBuckets)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Port <= 0 || c.Port > 65535 {
		add("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if u, err := url.Parse(c.FinanceAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("FINANCE_API_URL must be an absolute http(s) URL, got %q", c.FinanceAPIURL)
	}
	for name, d := range map[string]time.Duration{
		"HTTP_TIMEOUT":    c.HTTPTimeout,
		"FETCH_TIMEOUT":   c.FetchTimeout,
		"INITIAL_BACKOFF": c.InitialBackoff,
		"SESSION_TTL":     c.SessionTTL,
		"JWT_ACCESS_TTL":  c.JWTAccessTTL,
	} {
		if d <= 0 {
			add("%s must be positive, got %s", name, d)
		}
	}
	if c.MaxRetries < 0 {
		add("MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	if c.MaxConcurrency <= 0 {
		add("MAX_CONCURRENCY must be positive, got %d", c.MaxConcurrency)
	}
	if len(c.JWTSecret) < 16 {
		add("JWT_SECRET must be at least 16 characters")
	}
	if c.AMQPURL != "" && c.AMQPExchange == "" {
		add("AMQP_EXCHANGE is required when AMQP_URL is set")
	}
	if c.UtilizationFloor < 0 || c.UtilizationFloor > 100 {
		add("LEDGER_UTILIZATION_FLOOR must be between 0 and 100, got %g", c.UtilizationFloor)
	}
	for name, n := range map[string]int{
		"RECENT_LIMIT_DASHBOARD": c.DashboardRecent,
		"RECENT_LIMIT_INCOME":    c.IncomeRecent,
		"CHART_BUCKETS_INCOME":   c.IncomeBuckets,
		"RECENT_LIMIT_EXPENSE":   c.ExpenseRecent,
		"CHART_BUCKETS_EXPENSE":  c.ExpenseBuckets,
	} {
		if n < 0 {
			add("%s must not be negative, got %d", name, n)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
