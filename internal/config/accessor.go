package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// GetByPath returns the value at a dot path such as "providers.openai.model"
// or "server.allowedOrigins.0".
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}
	var current any = m
	for _, key := range strings.Split(path, ".") {
		current, err = child(current, key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return current, nil
}

// SetByPath replaces one leaf. The raw string is coerced to the type already
// stored there; list values take a comma-separated string. Leaves hidden by
// omitempty are tried as string, number, then bool. Unknown keys are
// rejected instead of being dropped on the way back into the struct.
func SetByPath(cfg *Config, path, raw string) error {
	m, err := toMap(cfg)
	if err != nil {
		return err
	}
	parts := strings.Split(path, ".")
	var parent any = m
	for _, key := range parts[:len(parts)-1] {
		if parent, err = child(parent, key); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	last := parts[len(parts)-1]
	old, err := child(parent, last)
	if err != nil {
		section, ok := parent.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: %w", path, err)
		}
		for _, val := range guesses(raw) {
			section[last] = val
			if next, derr := decodeStrict(m); derr == nil {
				*cfg = next
				return nil
			}
		}
		return fmt.Errorf("%s: %w", path, err)
	}

	val, err := coerce(old, raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	switch p := parent.(type) {
	case map[string]any:
		p[last] = val
	case []any:
		idx, _ := strconv.Atoi(last)
		p[idx] = val
	}

	next, err := decodeStrict(m)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	*cfg = next
	return nil
}

func decodeStrict(m map[string]any) (Config, error) {
	var cfg Config
	data, err := json.Marshal(m)
	if err != nil {
		return cfg, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	err = dec.Decode(&cfg)
	return cfg, err
}

func guesses(raw string) []any {
	out := []any{raw}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		out = append(out, f)
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		out = append(out, b)
	}
	return out
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func child(node any, key string) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		val, ok := v[key]
		if !ok {
			return nil, fmt.Errorf("unknown key %q", key)
		}
		return val, nil
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, fmt.Errorf("invalid index %q", key)
		}
		return v[idx], nil
	default:
		return nil, fmt.Errorf("%q is not a section", key)
	}
}

func coerce(old any, raw string) (any, error) {
	switch old.(type) {
	case map[string]any:
		return nil, fmt.Errorf("is a section, set one of its keys")
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("want true or false, got %q", raw)
		}
		return b, nil
	case float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("want a number, got %q", raw)
		}
		return f, nil
	case []any:
		items := []any{}
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		return items, nil
	default:
		return raw, nil
	}
}

// Sanitize returns a copy of cfg with credentials masked, for display.
func Sanitize(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var copy Config
	if err := json.Unmarshal(data, &copy); err != nil {
		return cfg
	}

	for _, secret := range []*string{
		&copy.Providers.OpenAI.APIKey,
		&copy.Providers.Gemini.APIKey,
		&copy.WhatsApp.AppSecret,
		&copy.WhatsApp.AccessToken,
		&copy.WhatsApp.VerifyToken,
		&copy.KWAP.APIKey,
		&copy.Server.WebhookSecret,
		&copy.Server.AdminToken,
	} {
		if *secret != "" {
			*secret = maskString(*secret)
		}
	}
	if copy.Database.Password != "" {
		copy.Database.Password = "***"
	}
	if u, err := url.Parse(copy.Redis.URL); err == nil {
		copy.Redis.URL = u.Redacted()
	}
	return &copy
}

// maskString keeps the first and last four characters.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths flattens cfg into dot paths, e.g. "server.rateLimit.windowMs".
func ListPaths(cfg *Config) map[string]any {
	m, err := toMap(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	flatten("", m, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(path, sub, out)
			continue
		}
		out[path] = v
	}
}
