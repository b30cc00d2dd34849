package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wabot/internal/domain"
)

func (s *Store) AppendTurn(ctx context.Context, turn domain.ConversationTurn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (phone_number, user_name, message_text, message_type, ai_model, response_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.UserID, nullString(turn.UserName), turn.Content, string(turn.Role),
		nullString(turn.Model), nullInt(turn.ResponseTimeMs), turn.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// RecentTurns returns the newest turns in chronological order.
func (s *Store) RecentTurns(ctx context.Context, userID string, limit int) ([]domain.ConversationTurn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone_number, user_name, message_text, message_type, ai_model, response_time_ms, created_at
		 FROM conversations WHERE phone_number = ?
		 ORDER BY id DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// RecentUserMessages returns the text of the newest user turns, newest first.
func (s *Store) RecentUserMessages(ctx context.Context, userID string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_text FROM conversations
		 WHERE phone_number = ? AND message_type = 'user'
		 ORDER BY id DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent user messages: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, rows.Err()
}

// AverageResponseTime averages the latency of assistant turns sent to a
// user since the given time. It returns 0 when there are none.
func (s *Store) AverageResponseTime(ctx context.Context, userID string, since time.Time) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(response_time_ms) FROM conversations
		 WHERE phone_number = ? AND message_type = 'assistant'
		   AND response_time_ms IS NOT NULL AND created_at >= ?`,
		userID, since.UTC(),
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("average response time: %w", err)
	}
	return avg.Float64, nil
}

// CountConversations counts stored turns created within [from, to].
func (s *Store) CountConversations(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE created_at >= ? AND created_at <= ?`,
		from.UTC(), to.UTC(),
	).Scan(&n)
	return n, err
}

func scanTurns(rows *sql.Rows) ([]domain.ConversationTurn, error) {
	defer rows.Close()
	var turns []domain.ConversationTurn
	for rows.Next() {
		var t domain.ConversationTurn
		var userName, model sql.NullString
		var latency sql.NullInt64
		var role string
		var createdAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.UserID, &userName, &t.Content, &role, &model, &latency, &createdAt); err != nil {
			return nil, err
		}
		t.Role = domain.Role(role)
		t.UserName, t.Model = userName.String, model.String
		t.ResponseTimeMs = latency.Int64
		t.CreatedAt = createdAt.Time
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n > 0}
}
