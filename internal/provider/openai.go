package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"wabot/internal/domain"
)

const (
	openAIDefaultBase  = "https://api.openai.com/v1"
	openAIDefaultModel = "gpt-3.5-turbo"
)

// OpenAI completes prompts with the OpenAI chat completions API.
type OpenAI struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type OpenAIConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = openAIDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAI{
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		model:   cfg.Model,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return Primary.ModelID() }

type oaiRequest struct {
	Model            string       `json:"model"`
	Messages         []oaiMessage `json:"messages"`
	MaxTokens        int          `json:"max_tokens,omitempty"`
	Temperature      float64      `json:"temperature"`
	PresencePenalty  float64      `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64      `json:"frequency_penalty,omitempty"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Usage   oaiUsage    `json:"usage"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// openAIMessages lays out the prompt as system messages, prior turns and
// the current user message.
func openAIMessages(p domain.Prompt) []oaiMessage {
	msgs := make([]oaiMessage, 0, len(p.System)+len(p.History)+1)
	for _, s := range p.System {
		msgs = append(msgs, oaiMessage{Role: "system", Content: s})
	}
	for _, t := range p.History {
		role := "user"
		if t.Role == domain.RoleAssistant {
			role = "assistant"
		}
		msgs = append(msgs, oaiMessage{Role: role, Content: t.Content})
	}
	return append(msgs, oaiMessage{Role: "user", Content: p.Message})
}

func (o *OpenAI) Complete(ctx context.Context, p domain.Prompt) (string, error) {
	body := oaiRequest{
		Model:            o.model,
		Messages:         openAIMessages(p),
		MaxTokens:        p.MaxTokens,
		Temperature:      p.Temperature,
		PresencePenalty:  p.PresencePenalty,
		FrequencyPenalty: p.FrequencyPenalty,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", &Error{Backend: "openai", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &Error{Backend: "openai", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var oaiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return "", &Error{Backend: "openai", Err: fmt.Errorf("decode: %w", err)}
	}
	if len(oaiResp.Choices) == 0 {
		return "", &Error{Backend: "openai", Err: errors.New("no choices in response")}
	}

	text := strings.TrimSpace(oaiResp.Choices[0].Message.Content)
	if text == "" {
		return "", &Error{Backend: "openai", Err: errors.New("empty completion")}
	}

	o.logger.Debug("openai completion",
		"model", o.model,
		"prompt_tokens", oaiResp.Usage.PromptTokens,
		"completion_tokens", oaiResp.Usage.CompletionTokens,
	)
	return text, nil
}
