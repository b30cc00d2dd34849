package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Missing files are ignored and variables
// already set are not overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// LoadOrDefault reads the config file when it exists, otherwise starts from
// Defaults. Environment overrides are applied before validation.
func LoadOrDefault(path string) (*Config, error) {
	cfg := Defaults()
	if _, err := os.Stat(ExpandPath(path)); err == nil {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat config file: %w", err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.expandPaths()
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides config values from well-known environment variables.
func ApplyEnv(cfg *Config) error {
	str := map[string]*string{
		"OPENAI_API_KEY":  &cfg.Providers.OpenAI.APIKey,
		"OPENAI_MODEL":    &cfg.Providers.OpenAI.Model,
		"GEMINI_API_KEY":  &cfg.Providers.Gemini.APIKey,
		"GEMINI_MODEL":    &cfg.Providers.Gemini.Model,
		"DB_DRIVER":       &cfg.Database.Driver,
		"DB_HOST":         &cfg.Database.Host,
		"DB_USER":         &cfg.Database.User,
		"DB_PASSWORD":     &cfg.Database.Password,
		"DB_NAME":         &cfg.Database.Name,
		"DB_PATH":         &cfg.Database.Path,
		"REDIS_URL":       &cfg.Redis.URL,
		"N8N_WEBHOOK_URL": &cfg.N8N.WebhookURL,
		"KWAP_API_URL":    &cfg.KWAP.URL,
		"KWAP_API_KEY":    &cfg.KWAP.APIKey,
		"LOG_LEVEL":       &cfg.Log.Level,
		"APP_ENV":         &cfg.Server.Environment,
		"WEBHOOK_SECRET":  &cfg.Server.WebhookSecret,
		"ADMIN_TOKEN":     &cfg.Server.AdminToken,
	}
	for name, dst := range str {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":                    &cfg.Server.Port,
		"DB_PORT":                 &cfg.Database.Port,
		"RATE_LIMIT_WINDOW_MS":    &cfg.Server.RateLimit.WindowMs,
		"RATE_LIMIT_MAX_REQUESTS": &cfg.Server.RateLimit.MaxRequests,
	}
	var errs []string
	for name, dst := range ints {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s=%q is not an integer", name, v))
			continue
		}
		*dst = n
	}

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.AllowedOrigins = origins
	}

	if len(errs) > 0 {
		return fmt.Errorf("environment overrides:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
