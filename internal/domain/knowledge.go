package domain

import (
	"context"
	"time"
)

// KnowledgeEntry is a curated question/answer pair from the knowledge base.
type KnowledgeEntry struct {
	ID        int64     `json:"id" yaml:"-"`
	Category  string    `json:"category" yaml:"category"`
	Keywords  string    `json:"keywords" yaml:"keywords"`
	Question  string    `json:"question" yaml:"question"`
	Answer    string    `json:"answer" yaml:"answer"`
	Priority  int       `json:"priority" yaml:"priority"`
	Active    bool      `json:"is_active" yaml:"active"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// KnowledgeStore searches active knowledge entries.
// An empty category means no category filter.
type KnowledgeStore interface {
	Search(ctx context.Context, query, category string, limit int) ([]KnowledgeEntry, error)
}

// KnowledgeFilter narrows admin listings of the knowledge base.
type KnowledgeFilter struct {
	Category string
	Search   string
	Page     int
	Limit    int
}

// KnowledgeAdmin is the read/write surface used by the admin API and the seeder.
type KnowledgeAdmin interface {
	KnowledgeStore
	ListKnowledge(ctx context.Context, f KnowledgeFilter) ([]KnowledgeEntry, int, error)
	GetKnowledge(ctx context.Context, id int64) (*KnowledgeEntry, error)
	AddKnowledge(ctx context.Context, e KnowledgeEntry) (int64, error)
	UpdateKnowledge(ctx context.Context, e KnowledgeEntry) error
	DeleteKnowledge(ctx context.Context, id int64) error
	CountKnowledge(ctx context.Context) (int, error)
	ClearKnowledge(ctx context.Context) error
}
