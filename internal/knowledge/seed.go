package knowledge

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"wabot/internal/domain"
)

//go:embed seed.yaml
var defaultSeed []byte

type seedFile struct {
	Entries []seedEntry `yaml:"entries"`
}

type seedEntry struct {
	Category string `yaml:"category"`
	Keywords string `yaml:"keywords"`
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
	Priority int    `yaml:"priority"`
	Active   *bool  `yaml:"active"`
}

// DefaultSeed returns the built-in sample knowledge base.
func DefaultSeed() ([]domain.KnowledgeEntry, error) {
	return LoadSeed(bytes.NewReader(defaultSeed))
}

// LoadSeedFile reads knowledge entries from a YAML file.
func LoadSeedFile(path string) ([]domain.KnowledgeEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return LoadSeed(f)
}

// LoadSeed decodes a seed document. Entries default to active with priority 1.
func LoadSeed(r io.Reader) ([]domain.KnowledgeEntry, error) {
	var doc seedFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	out := make([]domain.KnowledgeEntry, 0, len(doc.Entries))
	for i, se := range doc.Entries {
		if strings.TrimSpace(se.Question) == "" || strings.TrimSpace(se.Answer) == "" {
			return nil, fmt.Errorf("seed entry %d: question and answer are required", i)
		}
		if se.Category == "" {
			return nil, fmt.Errorf("seed entry %d: category is required", i)
		}
		e := domain.KnowledgeEntry{
			Category: se.Category,
			Keywords: se.Keywords,
			Question: se.Question,
			Answer:   se.Answer,
			Priority: se.Priority,
			Active:   true,
		}
		if e.Priority == 0 {
			e.Priority = 1
		}
		if se.Active != nil {
			e.Active = *se.Active
		}
		out = append(out, e)
	}
	return out, nil
}

// Seed writes entries into the knowledge base, optionally clearing it first.
// It returns the number of entries written.
func Seed(ctx context.Context, kb domain.KnowledgeAdmin, entries []domain.KnowledgeEntry, reset bool, logger *slog.Logger) (int, error) {
	if reset {
		if err := kb.ClearKnowledge(ctx); err != nil {
			return 0, fmt.Errorf("clear knowledge base: %w", err)
		}
		logger.Info("knowledge base cleared")
	}
	n := 0
	for _, e := range entries {
		if _, err := kb.AddKnowledge(ctx, e); err != nil {
			return n, fmt.Errorf("add %q: %w", e.Question, err)
		}
		n++
	}
	logger.Info("knowledge base seeded", "entries", n)
	return n, nil
}
