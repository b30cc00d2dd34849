package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestN8N_Forward(t *testing.T) {
	var got n8nPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"queued":true}`))
	}))
	defer srv.Close()

	n := NewN8N(N8NConfig{WebhookURL: srv.URL, Logger: testLogger()})
	result, err := n.Forward(context.Background(), Outbound{To: "60123", Message: "hi there", OriginalMessageID: "wamid.9"})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if result.(map[string]any)["queued"] != true {
		t.Errorf("result = %v", result)
	}

	if got.To != "60123" || got.Message != "hi there" || got.OriginalMessageID != "wamid.9" || got.Source != "ai-chatbot" {
		t.Errorf("unexpected payload %+v", got)
	}
	if _, err := uuid.Parse(got.MessageID); err != nil {
		t.Errorf("messageId %q: %v", got.MessageID, err)
	}
	if _, err := time.Parse(time.RFC3339, got.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", got.Timestamp, err)
	}
}

func TestN8N_NotConfigured(t *testing.T) {
	n := NewN8N(N8NConfig{Logger: testLogger()})
	if n.Configured() {
		t.Fatal("expected unconfigured forwarder")
	}
	result, err := n.Forward(context.Background(), Outbound{To: "60123", Message: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	m := result.(map[string]string)
	if m["status"] != "skipped" || m["reason"] != "no webhook configured" {
		t.Errorf("result = %v", m)
	}
}

func TestN8N_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workflow inactive", http.StatusNotFound)
	}))
	defer srv.Close()

	n := NewN8N(N8NConfig{WebhookURL: srv.URL, Logger: testLogger()})
	_, err := n.Forward(context.Background(), Outbound{To: "60123", Message: "hi"})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}

func TestN8N_NonJSONAndEmptyBodies(t *testing.T) {
	body := "Workflow was started"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()
	n := NewN8N(N8NConfig{WebhookURL: srv.URL, Logger: testLogger()})

	result, err := n.Forward(context.Background(), Outbound{To: "1", Message: "x"})
	if err != nil || result != "Workflow was started" {
		t.Errorf("text body: %v, %v", result, err)
	}

	body = ""
	result, err = n.Forward(context.Background(), Outbound{To: "1", Message: "x"})
	if err != nil || result.(map[string]string)["status"] != "ok" {
		t.Errorf("empty body: %v, %v", result, err)
	}
}

func TestN8N_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	n := NewN8N(N8NConfig{WebhookURL: srv.URL, Timeout: 20 * time.Millisecond, Logger: testLogger()})
	if _, err := n.Forward(context.Background(), Outbound{To: "1", Message: "x"}); err == nil {
		t.Fatal("expected timeout error")
	}
}
