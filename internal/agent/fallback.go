package agent

import (
	"fmt"

	"wabot/internal/domain"
	"wabot/internal/intent"
)

// ErrorReply is returned when the pipeline fails for any reason other than
// the model backend.
const ErrorReply = "I apologize, but I'm having trouble processing your message right now. 😅\n\nPlease try again in a moment, or contact our support team if the issue persists.\n\nIs there anything else I can help you with?"

var templates = map[intent.Intent]string{
	intent.Greeting:  "Hello! 👋 Welcome to WABOT - your AI-powered WhatsApp automation platform!\n\nI can help you with:\n• Platform information\n• Technical support\n• Pricing questions\n• Integration guidance\n\nWhat would you like to know?",
	intent.Pricing:   "💰 Our pricing starts at $19/month for the Starter plan!\n\n• Starter ($19/month) - Small businesses\n• Professional ($49/month) - Growing companies\n• Enterprise (Custom) - Tailored solutions\n\n🎉 Plus a 14-day free trial!\n\nWant to know more about any specific plan?",
	intent.Support:   "🛠️ I'm here to help!\n\nCommon solutions:\n• Check your API keys in .env file\n• Verify n8n workflows are active\n• Restart the application after changes\n• Review our documentation\n\nWhat specific issue can I help you with?",
	intent.Company:   "🤖 WABOT is your all-in-one WhatsApp automation platform!\n\nWe provide:\n• AI Chatbot - Smart conversations\n• WhatsApp Sender - Message broadcasting\n• KWAP Inquiry - Malaysian pension lookup\n• n8n Integration - Workflow automation\n\nHow can we help?",
	intent.WhatsApp:  "📱 WABOT connects to the WhatsApp Business API and third-party providers.\n\n• Send targeted and bulk messages\n• Use message templates\n• Automate replies with n8n workflows\n\nWould you like step-by-step setup guidance?",
	intent.AI:        "🧠 Our AI assistant runs on OpenAI GPT or Google Gemini, grounded in your own knowledge base and conversation history.\n\nYou can add Q&A entries to tailor its answers.\n\nWhat would you like the assistant to handle for you?",
	intent.KWAP:      "🏛️ KWAP Inquiry lets you look up Malaysian pension records by IC number.\n\nSend the IC number (digits only) through the KWAP inquiry service to see pensioner and dependant details.\n\nWould you like help running an inquiry?",
	intent.Technical: "🔧 Integrating with WABOT:\n\n1. Configure your OpenAI or Gemini API key\n2. Point your n8n workflow at the webhook\n3. Send a test message\n\nWhich step can I walk you through?",
	intent.Goodbye:   "Thanks for chatting with WABOT! 👋\n\nI'm available 24/7 to help with:\n• Questions about our platform\n• Technical support\n• Integration guidance\n\nFeel free to message anytime. Have a great day! 😊",
}

const generalTemplate = "Thanks for your message: \"%s\"\n\n🤖 I'm WABOT AI Assistant! I can help with:\n• Platform information & features\n• Technical support & setup\n• Pricing & plans\n• WhatsApp integration\n\nWhat would you like to know more about?"

// Fallback produces a reply without a model backend. The top knowledge
// entry wins; otherwise the intent template is used. It never returns an
// empty string.
func Fallback(in intent.Intent, message string, entries []domain.KnowledgeEntry) string {
	if len(entries) > 0 && entries[0].Answer != "" {
		best := entries[0]
		return fmt.Sprintf("%s\n\nIs there anything else you'd like to know about %s?", best.Answer, best.Category)
	}
	if t, ok := templates[in]; ok {
		return t
	}
	return fmt.Sprintf(generalTemplate, message)
}
