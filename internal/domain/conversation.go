package domain

import (
	"context"
	"time"
)

// Role is the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ConversationTurn is one persisted message of a user's conversation.
type ConversationTurn struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"phone_number"`
	UserName       string    `json:"user_name,omitempty"`
	Role           Role      `json:"message_type"`
	Content        string    `json:"message_text"`
	Model          string    `json:"ai_model,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationStore persists conversation turns per user.
type ConversationStore interface {
	AppendTurn(ctx context.Context, turn ConversationTurn) error
	// RecentTurns returns up to limit newest turns in chronological order.
	RecentTurns(ctx context.Context, userID string, limit int) ([]ConversationTurn, error)
}
