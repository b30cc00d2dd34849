package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"wabot/internal/agent"
	"wabot/internal/config"
)

const (
	whatsappAPIBase   = "https://graph.facebook.com/v21.0"
	whatsappMaxMsgLen = 4096
)

// WhatsApp serves the WhatsApp Business Cloud API webhook and replies
// through the Graph API.
type WhatsApp struct {
	cfg      config.WhatsAppConfig
	pipeline Responder
	logger   *slog.Logger
	client   *http.Client
	wg       sync.WaitGroup
}

type WhatsAppChannelConfig struct {
	Config   config.WhatsAppConfig
	Pipeline Responder
	Client   *http.Client
	Logger   *slog.Logger
}

func NewWhatsApp(cfg WhatsAppChannelConfig) *WhatsApp {
	if cfg.Config.WebhookPath == "" {
		cfg.Config.WebhookPath = "/webhook/whatsapp"
	}
	if cfg.Config.APIBase == "" {
		cfg.Config.APIBase = whatsappAPIBase
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WhatsApp{
		cfg:      cfg.Config,
		pipeline: cfg.Pipeline,
		logger:   cfg.Logger,
		client:   cfg.Client,
	}
}

// RegisterRoutes mounts the verification and delivery endpoints.
func (w *WhatsApp) RegisterRoutes(r chi.Router) {
	r.Get(w.cfg.WebhookPath, w.handleVerification)
	r.Post(w.cfg.WebhookPath, w.handleIncoming)
	w.logger.Info("whatsapp webhook ready", "path", w.cfg.WebhookPath)
}

// Wait blocks until replies already accepted have been sent.
func (w *WhatsApp) Wait() { w.wg.Wait() }

// --- Webhook handlers ---

// handleVerification answers the subscription challenge.
func (w *WhatsApp) handleVerification(rw http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && w.cfg.VerifyToken != "" && token == w.cfg.VerifyToken {
		w.logger.Info("whatsapp webhook verified")
		rw.WriteHeader(http.StatusOK)
		fmt.Fprint(rw, html.EscapeString(challenge))
		return
	}

	w.logger.Warn("whatsapp webhook verification failed", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

// handleIncoming acknowledges the delivery at once and answers each text
// message in the background, since Meta retries slow webhooks.
func (w *WhatsApp) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	if w.cfg.AppSecret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if !w.verifySignature(body, sig) {
			w.logger.Warn("whatsapp invalid signature")
			http.Error(rw, "Forbidden", http.StatusForbidden)
			return
		}
	}

	var payload waPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		w.logger.Warn("whatsapp bad payload", "err", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.Text == nil || strings.TrimSpace(msg.Text.Body) == "" {
					continue
				}

				w.logger.Info("whatsapp message received",
					"from", msg.From, "message_id", msg.ID, "text_len", len(msg.Text.Body))

				req := agent.Request{UserID: msg.From, UserName: names[msg.From], Message: msg.Text.Body}
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					w.reply(ctx, req)
				}()
			}
		}
	}

	rw.WriteHeader(http.StatusOK)
}

func (w *WhatsApp) reply(ctx context.Context, req agent.Request) {
	reply := w.pipeline.Respond(ctx, req)
	if err := w.Send(ctx, req.UserID, reply.Text); err != nil {
		w.logger.Error("whatsapp send failed", "err", err, "to", req.UserID)
	}
}

// verifySignature checks the X-Hub-Signature-256 header.
func (w *WhatsApp) verifySignature(body []byte, signature string) bool {
	expected, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, []byte(w.cfg.AppSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(computed))
}

// Send delivers text to a WhatsApp number, split into API-sized chunks.
func (w *WhatsApp) Send(ctx context.Context, to, text string) error {
	for _, chunk := range splitMessage(text, whatsappMaxMsgLen) {
		if err := w.sendMessage(ctx, to, chunk); err != nil {
			return err
		}
	}
	return nil
}

// sendMessage sends one text message via the Cloud API.
func (w *WhatsApp) sendMessage(ctx context.Context, to string, text string) error {
	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(w.cfg.APIBase, "/"), w.cfg.PhoneNumberID)

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp API %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// splitMessage splits a message into chunks that fit within the max length,
// trying to split on newlines when possible.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		for cut > 1 && !utf8.RuneStart(msg[cut]) {
			cut--
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

// --- WhatsApp webhook payload types ---

type waPayload struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Value waValue `json:"value"`
	Field string  `json:"field"`
}

type waValue struct {
	MessagingProduct string      `json:"messaging_product"`
	Contacts         []waContact `json:"contacts"`
	Messages         []waMessage `json:"messages"`
}

type waContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type waMessage struct {
	From string  `json:"from"`
	ID   string  `json:"id"`
	Type string  `json:"type"`
	Text *waText `json:"text,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}
