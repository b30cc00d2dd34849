// Package intent classifies inbound messages into a fixed set of intents
// using an ordered list of keyword patterns.
package intent

import (
	"fmt"
	"regexp"
	"strings"
)

// Intent is the coarse purpose of a user message.
type Intent int

const (
	Greeting Intent = iota
	Pricing
	Support
	Company
	WhatsApp
	AI
	KWAP
	Technical
	Goodbye
	General

	numIntents
)

var names = [numIntents]string{
	Greeting:  "greeting",
	Pricing:   "pricing",
	Support:   "support",
	Company:   "company",
	WhatsApp:  "whatsapp",
	AI:        "ai",
	KWAP:      "kwap",
	Technical: "technical",
	Goodbye:   "goodbye",
	General:   "general",
}

func (i Intent) String() string {
	if i < 0 || i >= numIntents {
		return fmt.Sprintf("intent(%d)", int(i))
	}
	return names[i]
}

// MarshalText lets intents appear as labels in JSON and log output.
func (i Intent) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// All returns every intent in rule order, with General last.
func All() []Intent {
	out := make([]Intent, 0, numIntents)
	for i := Intent(0); i < numIntents; i++ {
		out = append(out, i)
	}
	return out
}

// Parse maps a label back to its intent.
func Parse(s string) (Intent, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return Intent(i), nil
		}
	}
	return General, fmt.Errorf("unknown intent: %q", s)
}

type rule struct {
	intent  Intent
	pattern *regexp.Regexp
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{Greeting, regexp.MustCompile(`^(hi|hello|hey|good morning|good afternoon|good evening)`)},
	{Pricing, regexp.MustCompile(`(price|pricing|cost|plan|subscription|fee|payment|money)`)},
	{Support, regexp.MustCompile(`(help|support|problem|issue|trouble|error|assistance)`)},
	{Company, regexp.MustCompile(`(about|company|business|service|what do you|who are you)`)},
	{WhatsApp, regexp.MustCompile(`(whatsapp|integration|connect|phone|message|send)`)},
	{AI, regexp.MustCompile(`(ai|artificial intelligence|smart|intelligent|gpt|gemini)`)},
	{KWAP, regexp.MustCompile(`(kwap|pension|malaysia|retirement|inquiry|ic)`)},
	{Technical, regexp.MustCompile(`(api|integration|webhook|setup|configuration|install)`)},
	{Goodbye, regexp.MustCompile(`(bye|goodbye|see you|thanks|thank you)`)},
}

// Classify returns the intent of text. It is pure and never fails:
// anything no rule matches is General.
func Classify(text string) Intent {
	lower := strings.ToLower(text)
	for _, r := range rules {
		if r.pattern.MatchString(lower) {
			return r.intent
		}
	}
	return General
}
