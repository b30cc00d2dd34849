package provider

import (
	"log/slog"
	"time"

	"wabot/internal/domain"
)

// Backend identifies which hosted model serves replies. It is decided once
// at startup from the configured credentials.
type Backend int

const (
	None Backend = iota
	Primary
	Secondary
)

// ModelID is the identifier reported in reply metadata and stored with
// assistant turns.
func (b Backend) ModelID() string {
	switch b {
	case Primary:
		return "openai-gpt"
	case Secondary:
		return "google-gemini"
	default:
		return "fallback"
	}
}

func (b Backend) String() string {
	switch b {
	case Primary:
		return "openai"
	case Secondary:
		return "gemini"
	default:
		return "none"
	}
}

// Config carries the credentials of both candidate backends.
type Config struct {
	OpenAIKey   string
	OpenAIModel string
	OpenAIBase  string
	GeminiKey   string
	GeminiModel string
	GeminiBase  string
	Timeout     time.Duration
	Logger      *slog.Logger
}

// SelectBackend prefers OpenAI, then Gemini, then none.
func SelectBackend(cfg Config) Backend {
	switch {
	case cfg.OpenAIKey != "":
		return Primary
	case cfg.GeminiKey != "":
		return Secondary
	default:
		return None
	}
}

// New builds the completer for the selected backend. It returns nil and
// None when no credentials are configured.
func New(cfg Config) (domain.Completer, Backend) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := SharedHTTPClient(cfg.Timeout)

	b := SelectBackend(cfg)
	switch b {
	case Primary:
		cfg.Logger.Info("model backend selected", "backend", b, "model", cfg.OpenAIModel)
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			APIBase: cfg.OpenAIBase,
			Model:   cfg.OpenAIModel,
			Client:  client,
			Logger:  cfg.Logger,
		}), b
	case Secondary:
		cfg.Logger.Info("model backend selected", "backend", b, "model", cfg.GeminiModel)
		return NewGemini(GeminiConfig{
			APIKey:  cfg.GeminiKey,
			APIBase: cfg.GeminiBase,
			Model:   cfg.GeminiModel,
			Client:  client,
			Logger:  cfg.Logger,
		}), b
	default:
		cfg.Logger.Warn("no model backend configured, replies use templates")
		return nil, None
	}
}
