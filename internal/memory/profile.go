package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wabot/internal/domain"
)

// upsertProfileSQL increments total_messages inside the statement so
// concurrent exchanges for one user never lose an update.
var upsertProfileSQL = map[Dialect]string{
	DialectSQLite: `
		INSERT INTO user_profiles (phone_number, name, preferences, context_data, total_messages, last_interaction, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(phone_number) DO UPDATE SET
			name             = COALESCE(excluded.name, user_profiles.name),
			preferences      = COALESCE(excluded.preferences, user_profiles.preferences),
			context_data     = excluded.context_data,
			total_messages   = user_profiles.total_messages + 1,
			last_interaction = excluded.last_interaction,
			updated_at       = excluded.updated_at`,
	DialectMySQL: `
		INSERT INTO user_profiles (phone_number, name, preferences, context_data, total_messages, last_interaction, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name             = COALESCE(VALUES(name), name),
			preferences      = COALESCE(VALUES(preferences), preferences),
			context_data     = VALUES(context_data),
			total_messages   = total_messages + 1,
			last_interaction = VALUES(last_interaction),
			updated_at       = VALUES(updated_at)`,
}

func (s *Store) UpsertProfile(ctx context.Context, userID, name string, pc domain.ProfileContext) error {
	data, err := json.Marshal(pc)
	if err != nil {
		return fmt.Errorf("marshal profile context: %w", err)
	}
	var prefs any
	if pc.Preferences != nil {
		b, err := json.Marshal(pc.Preferences)
		if err != nil {
			return fmt.Errorf("marshal preferences: %w", err)
		}
		prefs = string(b)
	}
	ts := now()
	if _, err := s.db.ExecContext(ctx, upsertProfileSQL[s.dialect],
		userID, nullString(name), prefs, string(data), ts, ts, ts,
	); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	var p domain.UserProfile
	var name, email, prefs, contextData sql.NullString
	var last, created sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT phone_number, name, email, preferences, context_data, total_messages, last_interaction, created_at
		 FROM user_profiles WHERE phone_number = ?`, userID,
	).Scan(&p.UserID, &name, &email, &prefs, &contextData, &p.TotalMessages, &last, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.Name, p.Email = name.String, email.String
	p.LastInteraction, p.CreatedAt = last.Time, created.Time
	p.Preferences = map[string]any{}
	if prefs.Valid && prefs.String != "" {
		if err := json.Unmarshal([]byte(prefs.String), &p.Preferences); err != nil {
			s.logger.Warn("ignoring malformed preferences", "user", userID, "err", err)
			p.Preferences = map[string]any{}
		}
	}
	if contextData.Valid && contextData.String != "" {
		if err := json.Unmarshal([]byte(contextData.String), &p.Context); err != nil {
			s.logger.Warn("ignoring malformed profile context", "user", userID, "err", err)
		}
	}
	return &p, nil
}

// CountActiveUsers counts profiles that interacted within [from, to].
func (s *Store) CountActiveUsers(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_profiles WHERE last_interaction >= ? AND last_interaction <= ?`,
		from.UTC(), to.UTC(),
	).Scan(&n)
	return n, err
}
