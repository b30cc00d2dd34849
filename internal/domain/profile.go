package domain

import (
	"context"
	"time"
)

// ProfileContext is the small state blob refreshed on every exchange.
type ProfileContext struct {
	LastIntent      string    `json:"lastIntent"`
	LastInteraction time.Time `json:"lastInteraction"`

	// Preferences is stored in its own column. Nil keeps the stored map.
	Preferences map[string]any `json:"-"`
}

// UserProfile is the per-user record keyed by phone number.
type UserProfile struct {
	UserID          string         `json:"phone_number"`
	Name            string         `json:"name,omitempty"`
	Email           string         `json:"email,omitempty"`
	Preferences     map[string]any `json:"preferences"`
	TotalMessages   int            `json:"total_messages"`
	LastInteraction time.Time      `json:"last_interaction"`
	Context         ProfileContext `json:"context_data"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ProfileStore reads and upserts user profiles.
type ProfileStore interface {
	// GetProfile returns nil and no error when the user is unknown.
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	// UpsertProfile creates the profile with a count of one, or increments the
	// stored count atomically. A non-empty name replaces the stored one.
	UpsertProfile(ctx context.Context, userID, name string, pc ProfileContext) error
}
