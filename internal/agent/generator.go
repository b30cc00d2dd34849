package agent

import (
	"context"
	"fmt"
	"log/slog"

	"wabot/internal/domain"
	"wabot/internal/knowledge"
	"wabot/internal/provider"
)

const (
	defaultMaxTokens   = 500
	defaultTemperature = 0.7
	defaultPenalty     = 0.1
)

// Generation is the text produced for one exchange and the model that
// produced it.
type Generation struct {
	Text  string
	Model string
}

// Generator calls the configured model backend, or the template fallback
// when none is configured.
type Generator struct {
	completer domain.Completer
	backend   provider.Backend
	logger    *slog.Logger
}

type GeneratorConfig struct {
	Completer domain.Completer // nil when Backend is provider.None
	Backend   provider.Backend
	Logger    *slog.Logger
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Completer == nil {
		cfg.Backend = provider.None
	}
	return &Generator{completer: cfg.Completer, backend: cfg.Backend, logger: cfg.Logger}
}

// Backend reports the backend chosen at construction.
func (g *Generator) Backend() provider.Backend { return g.backend }

// Generate produces the reply for message. Backend failures are returned
// unchanged in kind (a *provider.Error survives errors.As) so the caller
// can choose the fallback.
func (g *Generator) Generate(ctx context.Context, rc ResponseContext, message string) (Generation, error) {
	if g.backend == provider.None {
		return Generation{Text: Fallback(rc.Intent, message, rc.Knowledge), Model: provider.None.ModelID()}, nil
	}

	text, err := g.completer.Complete(ctx, BuildPrompt(rc, message))
	if err != nil {
		return Generation{}, fmt.Errorf("%s completion: %w", g.backend, err)
	}
	return Generation{Text: text, Model: g.backend.ModelID()}, nil
}

// BuildPrompt lays out the backend-neutral prompt: preamble, knowledge
// block, profile note, history and the message last.
func BuildPrompt(rc ResponseContext, message string) domain.Prompt {
	system := []string{rc.Preamble}
	if len(rc.Knowledge) > 0 {
		system = append(system, "RELEVANT KNOWLEDGE BASE INFORMATION:\n"+knowledge.FormatEntries(rc.Knowledge)+
			"\n\nUse this information to provide accurate and helpful responses. If the user's question is directly addressed in the knowledge base, prioritize that information.")
	}
	if rc.Profile != nil {
		system = append(system, profileNote(rc.Profile))
	}
	return domain.Prompt{
		System:           system,
		History:          rc.History,
		Message:          message,
		MaxTokens:        defaultMaxTokens,
		Temperature:      defaultTemperature,
		PresencePenalty:  defaultPenalty,
		FrequencyPenalty: defaultPenalty,
	}
}

func profileNote(p *domain.UserProfile) string {
	note := fmt.Sprintf("USER PROFILE: User has sent %d messages. ", p.TotalMessages)
	if p.Name != "" {
		note += fmt.Sprintf("Name: %s. ", p.Name)
	}
	return note + "Feel free to personalize the response appropriately."
}
