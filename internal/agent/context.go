// Package agent turns one inbound message into one reply: it assembles the
// model context, generates the text, and records the exchange.
package agent

import (
	"wabot/internal/domain"
	"wabot/internal/intent"
)

// HistoryWindow is the number of prior turns handed to a backend.
const HistoryWindow = 10

const basePreamble = `You are WABOT AI Assistant - an intelligent, helpful, and professional AI chatbot specialized in WhatsApp automation and business communication solutions.

PERSONALITY:
- Friendly, professional, and solution-oriented
- Keep responses concise but informative (ideally under 300 characters for WhatsApp)
- Use emojis appropriately to make conversations engaging
- Always aim to be helpful and provide actionable information

CAPABILITIES:
- Answer questions about WABOT's services and features
- Provide technical support and guidance
- Help with pricing and business inquiries
- Assist with WhatsApp integration and setup
- Handle KWAP pension inquiry questions

RESPONSE GUIDELINES:
- If knowledge base information is provided, use it as the primary source of truth
- Personalize responses based on user profile if available
- Reference previous conversation context when relevant
- If you don't know something specific, be honest and offer to help find the information
- Always end with a helpful follow-up question or call-to-action when appropriate`

var focusClauses = map[intent.Intent]string{
	intent.Pricing:   "Focus on providing clear pricing information and help the user choose the right plan.",
	intent.Support:   "Be extra helpful and patient. Provide step-by-step guidance and offer multiple solution paths.",
	intent.Technical: "Provide detailed technical guidance. Break down complex processes into simple steps.",
	intent.Company:   "Highlight WABOT's key benefits and unique value propositions.",
	intent.WhatsApp:  "Focus on WhatsApp integration benefits and practical implementation guidance.",
}

// ResponseContext is the request-scoped input of the generator.
type ResponseContext struct {
	Preamble  string
	Message   string
	Intent    intent.Intent
	Knowledge []domain.KnowledgeEntry   // at most knowledge.DefaultLimit, priority order
	Profile   *domain.UserProfile       // nil for first contact
	History   []domain.ConversationTurn // at most HistoryWindow, oldest first
}

// Preamble returns the persona instructions, with a focus clause for
// intents that have one.
func Preamble(in intent.Intent) string {
	if clause, ok := focusClauses[in]; ok {
		return basePreamble + "\n\nSPECIAL FOCUS: " + clause
	}
	return basePreamble
}

// Assemble merges the pipeline inputs into a ResponseContext. It performs
// no I/O.
func Assemble(message string, in intent.Intent, entries []domain.KnowledgeEntry, profile *domain.UserProfile, history []domain.ConversationTurn) ResponseContext {
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	return ResponseContext{
		Preamble:  Preamble(in),
		Message:   message,
		Intent:    in,
		Knowledge: entries,
		Profile:   profile,
		History:   history,
	}
}
