// Package knowledge selects curated question/answer entries relevant to a
// message and renders them for prompt injection.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"wabot/internal/domain"
	"wabot/internal/intent"
)

// DefaultLimit is the maximum number of entries handed to the assembler.
const DefaultLimit = 3

// Category returns the knowledge category searched for an intent.
// Intents without a category search the whole knowledge base.
func Category(in intent.Intent) string {
	switch in {
	case intent.Pricing:
		return "pricing"
	case intent.Support:
		return "support"
	case intent.Company:
		return "company"
	case intent.WhatsApp:
		return "whatsapp"
	case intent.AI:
		return "ai"
	case intent.KWAP:
		return "kwap"
	case intent.Technical:
		return "integration"
	default:
		return ""
	}
}

// Retriever looks up knowledge entries for a classified message.
type Retriever struct {
	store  domain.KnowledgeStore
	limit  int
	logger *slog.Logger
}

type RetrieverConfig struct {
	Store  domain.KnowledgeStore
	Limit  int // default: DefaultLimit
	Logger *slog.Logger
}

func NewRetriever(cfg RetrieverConfig) *Retriever {
	if cfg.Limit <= 0 || cfg.Limit > DefaultLimit {
		cfg.Limit = DefaultLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Retriever{store: cfg.Store, limit: cfg.Limit, logger: cfg.Logger}
}

// Retrieve returns at most the configured number of entries, highest priority
// first. Store failures are logged and yield an empty result.
func (r *Retriever) Retrieve(ctx context.Context, query string, in intent.Intent) []domain.KnowledgeEntry {
	category := Category(in)
	found, err := r.store.Search(ctx, query, category, r.limit)
	if err != nil {
		r.logger.Warn("knowledge search failed", "intent", in, "category", category, "err", err)
		return []domain.KnowledgeEntry{}
	}

	out := make([]domain.KnowledgeEntry, len(found))
	copy(out, found)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	if len(out) > r.limit {
		out = out[:r.limit]
	}
	return out
}

// FormatEntries renders entries as Q/A blocks separated by rules.
func FormatEntries(entries []domain.KnowledgeEntry) string {
	if len(entries) == 0 {
		return ""
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("Q: %s\nA: %s", e.Question, e.Answer)
	}
	return strings.Join(parts, "\n\n---\n\n")
}
