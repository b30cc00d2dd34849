package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"wabot/internal/agent"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyHMAC_Valid(t *testing.T) {
	body := []byte(`{"message":"hello","from":"60123"}`)
	if !verifyHMAC(body, "test-secret", sign("test-secret", body)) {
		t.Error("valid HMAC should verify")
	}
}

func TestVerifyHMAC_Invalid(t *testing.T) {
	if verifyHMAC([]byte("body"), "secret", "sha256=invalid") {
		t.Error("invalid HMAC should not verify")
	}
}

func TestVerifyHMAC_Empty(t *testing.T) {
	if verifyHMAC([]byte("body"), "secret", "") {
		t.Error("empty signature should not verify")
	}
}

func TestWebhook_RunsPipelineAndForwards(t *testing.T) {
	env := newTestEnv(t, nil)
	env.responder.reply = &agent.Reply{
		Text: "Our Starter plan is $19/month.", Intent: "pricing",
		KnowledgeUsed: true, KnowledgeHits: 2, ResponseTimeMs: 42, Model: "openai-gpt",
	}

	rr := env.do("POST", "/webhook/message", map[string]string{
		"message": "How much does it cost?", "from": "60123456789", "to": "bot", "messageId": "wamid.1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := decodeBody(t, rr)
	if body["success"] != true || body["response"] != "Our Starter plan is $19/month." || body["from"] != "60123456789" {
		t.Errorf("unexpected body %v", body)
	}
	if body["forwarded"] != true {
		t.Errorf("forwarded = %v", body["forwarded"])
	}
	meta := body["metadata"].(map[string]any)
	if meta["intent"] != "pricing" || meta["knowledgeUsed"] != true || meta["model"] != "openai-gpt" || meta["responseTime"] != float64(42) {
		t.Errorf("unexpected metadata %v", meta)
	}

	reqs := env.responder.requests()
	if len(reqs) != 1 || reqs[0].UserID != "60123456789" || reqs[0].Message != "How much does it cost?" {
		t.Fatalf("unexpected pipeline requests %+v", reqs)
	}
	if len(env.forwarder.sent) != 1 {
		t.Fatalf("expected one forward, got %d", len(env.forwarder.sent))
	}
	sent := env.forwarder.sent[0]
	if sent.To != "60123456789" || sent.Message != "Our Starter plan is $19/month." || sent.OriginalMessageID != "wamid.1" {
		t.Errorf("unexpected forward %+v", sent)
	}
}

func TestWebhook_MissingFields(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, payload := range []map[string]string{
		{"message": "hi"},
		{"from": "60123"},
		{"message": "   ", "from": "60123"},
	} {
		rr := env.do("POST", "/webhook/message", payload)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%v: expected 400, got %d", payload, rr.Code)
			continue
		}
		if body := decodeBody(t, rr); body["error"] != "Missing required fields: message, from" {
			t.Errorf("unexpected error %v", body)
		}
	}
	if n := len(env.responder.requests()); n != 0 {
		t.Errorf("pipeline ran %d times", n)
	}
}

func TestWebhook_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, nil)
	if rr := env.do("POST", "/webhook/message", "not json"); rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestWebhook_GeneratesMessageID(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do("POST", "/webhook/message", map[string]string{"message": "hello", "from": "60123"})
	if len(env.forwarder.sent) != 1 {
		t.Fatalf("expected one forward, got %d", len(env.forwarder.sent))
	}
	if _, err := uuid.Parse(env.forwarder.sent[0].OriginalMessageID); err != nil {
		t.Errorf("message id %q is not a uuid", env.forwarder.sent[0].OriginalMessageID)
	}
}

func TestWebhook_ForwardFailureStillReplies(t *testing.T) {
	env := newTestEnv(t, nil)
	env.forwarder.err = errors.New("n8n down")

	rr := env.do("POST", "/webhook/message", map[string]string{"message": "hello", "from": "60123"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["forwarded"] != false || body["response"] != "echo: hello" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestWebhook_ForwarderNotConfigured(t *testing.T) {
	env := newTestEnv(t, nil)
	env.forwarder.configured = false

	rr := env.do("POST", "/webhook/message", map[string]string{"message": "hello", "from": "60123"})
	if body := decodeBody(t, rr); body["forwarded"] != false {
		t.Errorf("forwarded = %v", body["forwarded"])
	}
	if len(env.forwarder.sent) != 0 {
		t.Errorf("unexpected forwards %+v", env.forwarder.sent)
	}
}

func TestWebhook_Signature(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.Config.WebhookSecret = "my-secret" })
	body := `{"message":"hello","from":"60123"}`

	if rr := env.do("POST", "/webhook/message", body); rr.Code != http.StatusUnauthorized {
		t.Errorf("missing signature: expected 401, got %d", rr.Code)
	}
	if rr := env.do("POST", "/webhook/message", body, "X-Signature-256", "sha256=invalid"); rr.Code != http.StatusForbidden {
		t.Errorf("invalid signature: expected 403, got %d", rr.Code)
	}
	if rr := env.do("POST", "/webhook/message", body, "X-Signature-256", sign("my-secret", []byte(body))); rr.Code != http.StatusOK {
		t.Errorf("valid signature: expected 200, got %d", rr.Code)
	}
}
