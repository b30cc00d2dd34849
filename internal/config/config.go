package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for wabot.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Log       LogConfig       `json:"log"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Providers ProvidersConfig `json:"providers"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	N8N       N8NConfig       `json:"n8n"`
	KWAP      KWAPConfig      `json:"kwap"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type ServerConfig struct {
	Host           string          `json:"host"`
	Port           int             `json:"port"`
	Environment    string          `json:"environment"` // "development" | "production"
	AllowedOrigins []string        `json:"allowedOrigins"`
	MaxBodyBytes   int64           `json:"maxBodyBytes"`
	RateLimit      RateLimitConfig `json:"rateLimit"`
	WebhookSecret  string          `json:"webhookSecret,omitempty"` // HMAC key for /webhook/message
	AdminToken     string          `json:"adminToken,omitempty"`    // bearer token for /api/admin
}

// RateLimitConfig throttles /api/ and /webhook/ per client IP.
type RateLimitConfig struct {
	Enabled     bool `json:"enabled"`
	WindowMs    int  `json:"windowMs"`
	MaxRequests int  `json:"maxRequests"`
}

type LogConfig struct {
	Level  string `json:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `json:"format"` // "text" | "json"
	File   string `json:"file,omitempty"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver"` // "sqlite" | "mysql"
	Path     string `json:"path"`   // sqlite file
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name,omitempty"`
	MaxConns int    `json:"maxConns,omitempty"`
}

// RedisConfig enables the conversation history cache when URL is set.
type RedisConfig struct {
	URL             string `json:"url,omitempty"`
	HistoryTTLHours int    `json:"historyTTLHours"`
	HistoryMax      int    `json:"historyMax"`
}

type ProvidersConfig struct {
	OpenAI         ProviderConfig `json:"openai"`
	Gemini         ProviderConfig `json:"gemini"`
	TimeoutSeconds int            `json:"timeoutSeconds"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	APIBase string `json:"apiBase,omitempty"`
	Model   string `json:"model,omitempty"`
}

type WhatsAppConfig struct {
	Enabled       bool   `json:"enabled"`
	AppSecret     string `json:"appSecret,omitempty"`
	AccessToken   string `json:"accessToken,omitempty"`
	VerifyToken   string `json:"verifyToken,omitempty"`
	PhoneNumberID string `json:"phoneNumberId,omitempty"`
	WebhookPath   string `json:"webhookPath,omitempty"`
	APIBase       string `json:"apiBase,omitempty"`
}

// N8NConfig is the outbound workflow webhook replies are forwarded to.
type N8NConfig struct {
	WebhookURL     string `json:"webhookUrl,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type KWAPConfig struct {
	URL            string `json:"url"`
	APIKey         string `json:"apiKey,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// KnowledgeConfig configures the knowledge search cache and seed data.
type KnowledgeConfig struct {
	CacheSize       int    `json:"cacheSize"` // 0 disables the cache
	CacheTTLSeconds int    `json:"cacheTTLSeconds"`
	SeedFile        string `json:"seedFile,omitempty"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// Development reports whether CORS accepts any origin.
func (c *Config) Development() bool {
	return c.Server.Environment == "development"
}

// DefaultConfigDir returns the default config directory (~/.wabot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wabot"
	}
	return filepath.Join(home, ".wabot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	cfg.expandPaths()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) expandPaths() {
	c.Database.Path = ExpandPath(c.Database.Path)
	c.Log.File = ExpandPath(c.Log.File)
	c.Knowledge.SeedFile = ExpandPath(c.Knowledge.SeedFile)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// The file holds API keys.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	switch cfg.Server.Environment {
	case "development", "production":
	default:
		errs = append(errs, "server.environment must be one of: development, production")
	}
	if cfg.Server.MaxBodyBytes < 1 {
		errs = append(errs, "server.maxBodyBytes must be >= 1")
	}
	if cfg.Server.RateLimit.Enabled {
		if cfg.Server.RateLimit.WindowMs < 1000 {
			errs = append(errs, "server.rateLimit.windowMs must be >= 1000")
		}
		if cfg.Server.RateLimit.MaxRequests < 1 {
			errs = append(errs, "server.rateLimit.maxRequests must be >= 1")
		}
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, "log.format must be one of: text, json")
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite")
		}
	case "mysql":
		if cfg.Database.Host == "" || cfg.Database.Name == "" {
			errs = append(errs, "database.host and database.name are required for mysql")
		}
	default:
		errs = append(errs, "database.driver must be one of: sqlite, mysql")
	}

	if cfg.Redis.URL != "" && cfg.Redis.HistoryMax < 1 {
		errs = append(errs, "redis.historyMax must be >= 1")
	}
	if cfg.Providers.TimeoutSeconds < 1 || cfg.Providers.TimeoutSeconds > 300 {
		errs = append(errs, "providers.timeoutSeconds must be between 1 and 300")
	}

	for name, raw := range map[string]string{
		"n8n.webhookUrl":           cfg.N8N.WebhookURL,
		"kwap.url":                 cfg.KWAP.URL,
		"providers.openai.apiBase": cfg.Providers.OpenAI.APIBase,
		"providers.gemini.apiBase": cfg.Providers.Gemini.APIBase,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("%s must be an absolute URL", name))
		}
	}

	if cfg.WhatsApp.Enabled {
		if cfg.WhatsApp.AccessToken == "" || cfg.WhatsApp.PhoneNumberID == "" {
			errs = append(errs, "whatsapp.accessToken and whatsapp.phoneNumberId are required when enabled")
		}
		if !strings.HasPrefix(cfg.WhatsApp.WebhookPath, "/") {
			errs = append(errs, "whatsapp.webhookPath must start with /")
		}
	}

	if cfg.Knowledge.CacheSize < 0 {
		errs = append(errs, "knowledge.cacheSize must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
