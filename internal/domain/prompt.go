package domain

import "context"

// Prompt is the backend-neutral request built for one exchange.
type Prompt struct {
	// System holds the instruction blocks in order: preamble, knowledge, profile note.
	System []string
	// History is prior turns in chronological order.
	History []ConversationTurn
	// Message is the current user message, always sent last.
	Message string

	MaxTokens        int
	Temperature      float64
	PresencePenalty  float64
	FrequencyPenalty float64
}

// Completer produces a reply text from a prompt using a hosted model.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Name() string
}
