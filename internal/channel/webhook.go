package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"wabot/internal/agent"
)

// WebhookPayload is the JSON body accepted on /webhook/message.
type WebhookPayload struct {
	Message   string `json:"message"`
	From      string `json:"from"`
	To        string `json:"to"`
	MessageID string `json:"messageId"`
	Name      string `json:"name,omitempty"`
}

type webhookMetadata struct {
	Intent        string `json:"intent"`
	KnowledgeUsed bool   `json:"knowledgeUsed"`
	ResponseTime  int64  `json:"responseTime"`
	Model         string `json:"model"`
}

type webhookResponse struct {
	Success   bool            `json:"success"`
	Response  string          `json:"response"`
	From      string          `json:"from"`
	Timestamp string          `json:"timestamp"`
	Metadata  webhookMetadata `json:"metadata"`
	Forwarded bool            `json:"forwarded"`
}

// handleWebhook runs the pipeline for a message relayed by n8n or a WhatsApp
// gateway and forwards the reply back through n8n.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "Bad request")
		return
	}

	if s.cfg.WebhookSecret != "" {
		sig := r.Header.Get("X-Signature-256")
		if sig == "" {
			respondError(w, http.StatusUnauthorized, "Missing signature")
			return
		}
		if !verifyHMAC(body, s.cfg.WebhookSecret, sig) {
			respondError(w, http.StatusForbidden, "Invalid signature")
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if strings.TrimSpace(payload.Message) == "" || payload.From == "" {
		respondError(w, http.StatusBadRequest, "Missing required fields: message, from")
		return
	}
	if payload.MessageID == "" {
		payload.MessageID = uuid.NewString()
	}

	s.logger.Info("webhook message received",
		"from", payload.From,
		"message_id", payload.MessageID,
		"content_len", len(payload.Message),
	)

	reply := s.pipeline.Respond(r.Context(), agent.Request{
		UserID:   payload.From,
		UserName: payload.Name,
		Message:  payload.Message,
	})

	forwarded := false
	if s.forwarder != nil && s.forwarder.Configured() {
		if _, err := s.forwarder.Forward(r.Context(), Outbound{
			To:                payload.From,
			Message:           reply.Text,
			OriginalMessageID: payload.MessageID,
		}); err != nil {
			s.logger.Warn("n8n forward failed", "to", payload.From, "err", err)
		} else {
			forwarded = true
		}
	}

	respondJSON(w, http.StatusOK, webhookResponse{
		Success:   true,
		Response:  reply.Text,
		From:      payload.From,
		Timestamp: timestamp(),
		Metadata: webhookMetadata{
			Intent:        reply.Intent,
			KnowledgeUsed: reply.KnowledgeUsed,
			ResponseTime:  reply.ResponseTimeMs,
			Model:         reply.Model,
		},
		Forwarded: forwarded,
	})
}

// verifyHMAC verifies the HMAC-SHA256 signature of the body.
func verifyHMAC(body []byte, secret, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
