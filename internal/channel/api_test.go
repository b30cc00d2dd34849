package channel

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"wabot/internal/domain"
	"wabot/internal/kwap"
)

// --- /api/send ---

func TestSend(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do("POST", "/api/send", map[string]string{"to": "60123", "message": "Your order shipped"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["success"] != true || body["result"].(map[string]any)["status"] != "queued" {
		t.Errorf("unexpected body %v", body)
	}
	if len(env.forwarder.sent) != 1 || env.forwarder.sent[0].To != "60123" {
		t.Errorf("unexpected forwards %+v", env.forwarder.sent)
	}
}

func TestSend_MissingFields(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do("POST", "/api/send", map[string]string{"to": "60123"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "Missing required fields: to, message" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestSend_ForwardError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.forwarder.err = errors.New("n8n webhook 502")
	rr := env.do("POST", "/api/send", map[string]string{"to": "60123", "message": "hi"})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "Failed to send message" || body["details"] != "n8n webhook 502" {
		t.Errorf("unexpected body %v", body)
	}
}

// --- /api/kwap/inquiry ---

func TestKWAPInquiry(t *testing.T) {
	env := newTestEnv(t, nil)
	env.pensions.info = &kwap.Pensioner{Name: "AHMAD BIN ALI", CurrentIDNo: "560101015555"}

	rr := env.do("POST", "/api/kwap/inquiry", map[string]string{"nokp": "560101015555"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	info := body["pensionerInfo"].(map[string]any)
	if body["success"] != true || info["name"] != "AHMAD BIN ALI" {
		t.Errorf("unexpected body %v", body)
	}
	if len(env.pensions.asked) != 1 || env.pensions.asked[0] != "560101015555" {
		t.Errorf("asked %v", env.pensions.asked)
	}
}

func TestKWAPInquiry_Errors(t *testing.T) {
	tests := []struct {
		name       string
		nokp       string
		configured bool
		err        error
		want       int
		wantErr    string
	}{
		{"missing", "", true, nil, http.StatusBadRequest, "Missing required field: nokp (IC number)"},
		{"too short", "123", true, nil, http.StatusBadRequest, "Invalid IC number format. Must be between 4 and 15 digits."},
		{"not digits", "5601-01-0155", true, nil, http.StatusBadRequest, "Invalid IC number format. Must be between 4 and 15 digits."},
		{"not configured", "560101015555", false, nil, http.StatusServiceUnavailable, "KWAP inquiry service not configured"},
		{"not found", "560101015555", true, kwap.ErrNotFound, http.StatusNotFound, "No pension information found for this IC number"},
		{"upstream", "560101015555", true, errors.New("kwap: status 502"), http.StatusInternalServerError, "Failed to retrieve pension information"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.pensions.configured = tt.configured
			env.pensions.err = tt.err

			rr := env.do("POST", "/api/kwap/inquiry", map[string]string{"nokp": tt.nokp})
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
			if body := decodeBody(t, rr); body["error"] != tt.wantErr {
				t.Errorf("error = %v, want %q", body["error"], tt.wantErr)
			}
		})
	}
}

// --- /api/conversation/{phone} ---

func TestConversation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		env.store.AppendTurn(ctx, domain.ConversationTurn{UserID: "60123", Role: domain.RoleUser, Content: "question"})
		env.store.AppendTurn(ctx, domain.ConversationTurn{UserID: "60123", Role: domain.RoleAssistant, Content: "answer", Model: "fallback"})
	}
	if err := env.store.UpsertProfile(ctx, "60123", "Aina", domain.ProfileContext{LastIntent: "greeting"}); err != nil {
		t.Fatal(err)
	}

	rr := env.do("GET", "/api/conversation/60123", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["phoneNumber"] != "60123" || body["databaseEnabled"] != true {
		t.Errorf("unexpected body %v", body)
	}
	if history := body["history"].([]any); len(history) != conversationLimit {
		t.Errorf("history = %d turns, want %d", len(history), conversationLimit)
	}
	profile := body["profile"].(map[string]any)
	if profile["name"] != "Aina" || profile["totalMessages"] != float64(1) {
		t.Errorf("unexpected profile %v", profile)
	}
}

func TestConversation_UnknownUser(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do("GET", "/api/conversation/000", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["profile"] != nil || len(body["history"].([]any)) != 0 {
		t.Errorf("unexpected body %v", body)
	}
}

func TestConversation_NoDatabase(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.Store = nil })
	body := decodeBody(t, env.do("GET", "/api/conversation/60123", nil))
	if body["databaseEnabled"] != false {
		t.Errorf("unexpected body %v", body)
	}
}
