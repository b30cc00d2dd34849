package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Outbound is a reply handed to the n8n workflow for delivery.
type Outbound struct {
	To                string
	Message           string
	OriginalMessageID string
}

type n8nPayload struct {
	To                string `json:"to"`
	Message           string `json:"message"`
	OriginalMessageID string `json:"originalMessageId,omitempty"`
	MessageID         string `json:"messageId"`
	Timestamp         string `json:"timestamp"`
	Source            string `json:"source"`
}

// N8N posts outbound messages to an n8n webhook.
type N8N struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

type N8NConfig struct {
	WebhookURL string
	Timeout    time.Duration
	Client     *http.Client
	Logger     *slog.Logger
}

func NewN8N(cfg N8NConfig) *N8N {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &N8N{url: cfg.WebhookURL, client: cfg.Client, logger: cfg.Logger}
}

func (n *N8N) Configured() bool { return n.url != "" }

// Forward delivers msg to the workflow and returns its decoded response.
// Without a webhook URL nothing is sent and a "skipped" status is returned.
func (n *N8N) Forward(ctx context.Context, msg Outbound) (any, error) {
	if !n.Configured() {
		n.logger.Warn("n8n webhook not configured, skipping forward", "to", msg.To)
		return map[string]string{"status": "skipped", "reason": "no webhook configured"}, nil
	}

	body, err := json.Marshal(n8nPayload{
		To:                msg.To,
		Message:           msg.Message,
		OriginalMessageID: msg.OriginalMessageID,
		MessageID:         uuid.NewString(),
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		Source:            "ai-chatbot",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal n8n payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build n8n request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("n8n forward: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read n8n response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("n8n webhook %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	n.logger.Info("message forwarded to n8n", "to", msg.To, "status", resp.StatusCode)

	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]string{"status": "ok"}, nil
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return string(data), nil
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
