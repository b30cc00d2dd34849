package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"wabot/internal/domain"
)

const knowledgeColumns = `id, category, keywords, question, answer, priority, is_active, created_at, updated_at`

// likeEscaper escapes LIKE wildcards with '!', which both dialects accept
// as an ESCAPE character.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

// Search returns active entries ordered by priority. A category search that
// finds nothing falls back to matching the query against keywords and
// questions.
func (s *Store) Search(ctx context.Context, query, category string, limit int) ([]domain.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 3
	}

	if category != "" {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+knowledgeColumns+` FROM knowledge_base
			 WHERE category = ? AND is_active = TRUE
			 ORDER BY priority DESC, id ASC LIMIT ?`,
			category, limit,
		)
		if err != nil {
			return nil, fmt.Errorf("search knowledge by category: %w", err)
		}
		entries, err := scanKnowledge(rows)
		if err != nil || len(entries) > 0 {
			return entries, err
		}
	}

	if strings.TrimSpace(query) == "" {
		return []domain.KnowledgeEntry{}, nil
	}

	pattern := likePattern(query)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_base
		 WHERE is_active = TRUE
		   AND (LOWER(keywords) LIKE ? ESCAPE '!' OR LOWER(question) LIKE ? ESCAPE '!')
		 ORDER BY priority DESC, id ASC LIMIT ?`,
		pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search knowledge by keyword: %w", err)
	}
	return scanKnowledge(rows)
}

// ListKnowledge pages through entries for the admin API, active or not.
// It also returns the total number of matching rows.
func (s *Store) ListKnowledge(ctx context.Context, f domain.KnowledgeFilter) ([]domain.KnowledgeEntry, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	var where []string
	var args []any
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		p := likePattern(q)
		where = append(where, "(LOWER(question) LIKE ? ESCAPE '!' OR LOWER(answer) LIKE ? ESCAPE '!' OR LOWER(keywords) LIKE ? ESCAPE '!')")
		args = append(args, p, p, p)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_base`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count knowledge: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_base`+clause+
			` ORDER BY priority DESC, id ASC LIMIT ? OFFSET ?`,
		append(args, f.Limit, (f.Page-1)*f.Limit)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list knowledge: %w", err)
	}
	entries, err := scanKnowledge(rows)
	return entries, total, err
}

func (s *Store) GetKnowledge(ctx context.Context, id int64) (*domain.KnowledgeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+knowledgeColumns+` FROM knowledge_base WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	entries, err := scanKnowledge(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return &entries[0], nil
}

func (s *Store) AddKnowledge(ctx context.Context, e domain.KnowledgeEntry) (int64, error) {
	if e.Priority == 0 {
		e.Priority = 1
	}
	ts := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_base (category, keywords, question, answer, priority, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Category, e.Keywords, e.Question, e.Answer, e.Priority, e.Active, ts, ts,
	)
	if err != nil {
		return 0, fmt.Errorf("insert knowledge: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) UpdateKnowledge(ctx context.Context, e domain.KnowledgeEntry) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_base
		 SET category = ?, keywords = ?, question = ?, answer = ?, priority = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		e.Category, e.Keywords, e.Question, e.Answer, e.Priority, e.Active, now(), e.ID,
	)
	if err != nil {
		return fmt.Errorf("update knowledge: %w", err)
	}
	return requireRow(res)
}

func (s *Store) DeleteKnowledge(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_base WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete knowledge: %w", err)
	}
	return requireRow(res)
}

func (s *Store) CountKnowledge(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_base`).Scan(&n)
	return n, err
}

func (s *Store) ClearKnowledge(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_base`)
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanKnowledge(rows *sql.Rows) ([]domain.KnowledgeEntry, error) {
	defer rows.Close()
	entries := []domain.KnowledgeEntry{}
	for rows.Next() {
		var e domain.KnowledgeEntry
		var createdAt, updatedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.Category, &e.Keywords, &e.Question, &e.Answer,
			&e.Priority, &e.Active, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt, e.UpdatedAt = createdAt.Time, updatedAt.Time
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
