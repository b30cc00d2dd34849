package channel

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"wabot/internal/domain"
	"wabot/internal/kwap"
)

const conversationLimit = 20

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.To == "" || strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "Missing required fields: to, message")
		return
	}
	if s.forwarder == nil {
		respondError(w, http.StatusServiceUnavailable, "Message forwarding not available")
		return
	}

	result, err := s.forwarder.Forward(r.Context(), Outbound{To: req.To, Message: req.Message})
	if err != nil {
		s.logger.Error("send failed", "to", req.To, "err", err)
		respondFailure(w, "Failed to send message", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"result":    result,
		"timestamp": timestamp(),
	})
}

type inquiryRequest struct {
	NoKP string `json:"nokp"`
}

func (s *Server) handleKWAPInquiry(w http.ResponseWriter, r *http.Request) {
	var req inquiryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.NoKP == "" {
		respondError(w, http.StatusBadRequest, "Missing required field: nokp (IC number)")
		return
	}
	if err := kwap.ValidateIC(req.NoKP); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid IC number format. Must be between 4 and 15 digits.")
		return
	}
	if s.pensions == nil || !s.pensions.Configured() {
		respondError(w, http.StatusServiceUnavailable, "KWAP inquiry service not configured")
		return
	}

	info, err := s.pensions.Inquire(r.Context(), req.NoKP)
	switch {
	case errors.Is(err, kwap.ErrNotFound):
		respondError(w, http.StatusNotFound, "No pension information found for this IC number")
		return
	case err != nil:
		s.logger.Error("kwap inquiry failed", "err", err)
		respondFailure(w, "Failed to retrieve pension information", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"pensionerInfo": info,
		"timestamp":     timestamp(),
	})
}

type profileSummary struct {
	Name            string `json:"name"`
	TotalMessages   int    `json:"totalMessages"`
	LastInteraction string `json:"lastInteraction"`
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	if s.store == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"phoneNumber":     phone,
			"history":         []domain.ConversationTurn{},
			"profile":         nil,
			"databaseEnabled": false,
			"message":         "Database not available - conversation history not stored",
		})
		return
	}

	history, err := s.store.RecentTurns(r.Context(), phone, conversationLimit)
	if err != nil {
		s.logger.Error("conversation history failed", "user", phone, "err", err)
		respondFailure(w, "Failed to retrieve conversation history", err)
		return
	}
	profile, err := s.store.GetProfile(r.Context(), phone)
	if err != nil {
		s.logger.Error("profile lookup failed", "user", phone, "err", err)
		respondFailure(w, "Failed to retrieve conversation history", err)
		return
	}

	var summary *profileSummary
	if profile != nil {
		summary = &profileSummary{
			Name:            profile.Name,
			TotalMessages:   profile.TotalMessages,
			LastInteraction: profile.LastInteraction.UTC().Format(time.RFC3339),
		}
	}
	if history == nil {
		history = []domain.ConversationTurn{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"phoneNumber":     phone,
		"history":         history,
		"profile":         summary,
		"databaseEnabled": true,
	})
}
