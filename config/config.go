package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names understood by the router
const (
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// KnownProviders lists every provider the router can talk to, in default priority order
var KnownProviders = []string{ProviderGroq, ProviderGemini, ProviderOpenAI}

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Router        RouterConfig
	Providers     ProvidersConfig
	CORS          CORSConfig
	Journal       JournalConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// RouterConfig holds fallback orchestration settings
type RouterConfig struct {
	// Timeout bounds every single upstream call
	Timeout time.Duration

	// MaxErrorBodyBytes caps how much of a failed reply is kept for diagnostics
	MaxErrorBodyBytes int64

	// ProviderOrder is the provider priority; models are tried provider by provider
	ProviderOrder []string

	// SystemPrompt, when set, is prepended to every conversation
	SystemPrompt string

	DefaultTemperature float64
	DefaultMaxTokens   int

	// ChainFile is an optional YAML file overriding order, models and base URLs
	ChainFile string
}

// ProvidersConfig holds upstream provider configurations
type ProvidersConfig struct {
	Groq   ProviderConfig
	Gemini ProviderConfig
	OpenAI ProviderConfig
}

// ProviderConfig holds one provider's credentials and chain settings.
// Empty BaseURL or Models fall back to the provider's built-in defaults.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Models  []string
}

// CORSConfig holds cross-origin settings for the completion endpoints
type CORSConfig struct {
	// AllowedOrigins is an exact allowlist; empty or "*" allows any origin
	AllowedOrigins []string
}

// JournalConfig holds settings for the attempt journal
type JournalConfig struct {
	Enabled     bool
	Database    DatabaseConfig
	BufferSize  int
	WorkerCount int
}

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	ConnectionString string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// chainFile is the on-disk shape of ROUTER_CHAIN_FILE
type chainFile struct {
	Order     []string                  `yaml:"order"`
	Providers map[string]chainFileEntry `yaml:"providers"`
}

type chainFileEntry struct {
	BaseURL string   `yaml:"base_url"`
	Models  []string `yaml:"models"`
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Router: RouterConfig{
			Timeout:            getEnvAsDuration("ROUTER_TIMEOUT", 12*time.Second),
			MaxErrorBodyBytes:  int64(getEnvAsInt("ROUTER_MAX_ERROR_BODY", 4096)),
			ProviderOrder:      lowerAll(getEnvAsList("PROVIDER_ORDER")),
			SystemPrompt:       getEnv("ROUTER_SYSTEM_PROMPT", ""),
			DefaultTemperature: getEnvAsFloat("ROUTER_DEFAULT_TEMPERATURE", 0.7),
			DefaultMaxTokens:   getEnvAsInt("ROUTER_DEFAULT_MAX_TOKENS", 800),
			ChainFile:          getEnv("ROUTER_CHAIN_FILE", ""),
		},
		Providers: ProvidersConfig{
			Groq:   loadProviderConfig("GROQ"),
			Gemini: loadProviderConfig("GEMINI"),
			OpenAI: loadProviderConfig("OPENAI"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS"),
		},
		Journal: loadJournalConfig(),
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Router.ChainFile != "" {
		if err := cfg.applyChainFile(cfg.Router.ChainFile); err != nil {
			return nil, fmt.Errorf("chain file: %w", err)
		}
	}

	if len(cfg.Router.ProviderOrder) == 0 {
		cfg.Router.ProviderOrder = append([]string(nil), KnownProviders...)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Router.Timeout <= 0 {
		return fmt.Errorf("router timeout must be positive")
	}
	if c.Router.MaxErrorBodyBytes <= 0 {
		return fmt.Errorf("router max error body must be positive")
	}
	if c.Router.DefaultTemperature < 0 || c.Router.DefaultTemperature > 2 {
		return fmt.Errorf("default temperature must be between 0 and 2")
	}
	if c.Router.DefaultMaxTokens <= 0 {
		return fmt.Errorf("default max tokens must be positive")
	}

	seen := make(map[string]bool, len(c.Router.ProviderOrder))
	for _, name := range c.Router.ProviderOrder {
		if !isKnownProvider(name) {
			return fmt.Errorf("unknown provider %q in provider order", name)
		}
		if seen[name] {
			return fmt.Errorf("provider %q listed twice in provider order", name)
		}
		seen[name] = true
	}

	if c.Journal.Enabled {
		if c.Journal.Database.ConnectionString == "" {
			return fmt.Errorf("journal database url is required when the journal is enabled")
		}
		if c.Journal.BufferSize <= 0 || c.Journal.WorkerCount <= 0 {
			return fmt.Errorf("journal buffer size and worker count must be positive")
		}
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Provider returns the configuration for a provider by name
func (p *ProvidersConfig) Provider(name string) (ProviderConfig, bool) {
	if pc := p.provider(name); pc != nil {
		return *pc, true
	}
	return ProviderConfig{}, false
}

func (p *ProvidersConfig) provider(name string) *ProviderConfig {
	switch name {
	case ProviderGroq:
		return &p.Groq
	case ProviderGemini:
		return &p.Gemini
	case ProviderOpenAI:
		return &p.OpenAI
	}
	return nil
}

// AllowsAnyOrigin reports whether CORS should accept every origin
func (c *CORSConfig) AllowsAnyOrigin() bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return c.ConnectionString
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	u, err := url.Parse(c.ConnectionString)
	if err != nil || u.Host == "" {
		return "host=<from DATABASE_URL>"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	db := strings.TrimPrefix(u.Path, "/")
	return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, db)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// maxHandlerMargin caps the gap between the handler deadline and the server write deadline
const maxHandlerMargin = 5 * time.Second

// HandlerTimeout is the deadline given to request handlers. It stays below
// WriteTimeout so a timed-out run can still write its error before the server
// closes the connection. Zero means no handler deadline.
func (c *ServerConfig) HandlerTimeout() time.Duration {
	if c.WriteTimeout <= 0 {
		return 0
	}
	margin := c.WriteTimeout / 10
	if margin > maxHandlerMargin {
		margin = maxHandlerMargin
	}
	return c.WriteTimeout - margin
}

// applyChainFile fills order, base URLs and models not already set from the environment.
// Keys are never read from the file.
func (c *Config) applyChainFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file chainFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if len(c.Router.ProviderOrder) == 0 {
		for _, name := range file.Order {
			c.Router.ProviderOrder = append(c.Router.ProviderOrder, strings.ToLower(strings.TrimSpace(name)))
		}
	}

	for name, entry := range file.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		p := c.Providers.provider(name)
		if p == nil {
			return fmt.Errorf("unknown provider %q", name)
		}
		if p.BaseURL == "" {
			p.BaseURL = entry.BaseURL
		}
		if len(p.Models) == 0 {
			p.Models = append([]string(nil), entry.Models...)
		}
	}

	return nil
}

// loadProviderConfig reads <PREFIX>_API_KEY, <PREFIX>_BASE_URL and <PREFIX>_MODELS
func loadProviderConfig(prefix string) ProviderConfig {
	return ProviderConfig{
		APIKey:  strings.TrimSpace(getEnv(prefix+"_API_KEY", "")),
		BaseURL: getEnv(prefix+"_BASE_URL", ""),
		Models:  getEnvAsList(prefix + "_MODELS"),
	}
}

// loadJournalConfig enables the journal when JOURNAL_DATABASE_URL or DATABASE_URL is set
func loadJournalConfig() JournalConfig {
	dbURL := getEnv("JOURNAL_DATABASE_URL", getEnv("DATABASE_URL", ""))
	return JournalConfig{
		Enabled: dbURL != "",
		Database: DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		BufferSize:  getEnvAsInt("JOURNAL_BUFFER_SIZE", 1000),
		WorkerCount: getEnvAsInt("JOURNAL_WORKERS", 2),
	}
}

func lowerAll(items []string) []string {
	for i, item := range items {
		items[i] = strings.ToLower(item)
	}
	return items
}

func isKnownProvider(name string) bool {
	for _, known := range KnownProviders {
		if name == known {
			return true
		}
	}
	return false
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated variable, dropping blanks
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
