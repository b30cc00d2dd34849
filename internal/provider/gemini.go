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
	"net/url"
	"strings"

	"wabot/internal/domain"
)

const (
	geminiDefaultBase  = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel = "gemini-1.5-pro"
)

// Gemini completes prompts with the Google Generative Language API.
type Gemini struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type GeminiConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.APIBase == "" {
		cfg.APIBase = geminiDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gemini{
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		model:   cfg.Model,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (g *Gemini) Name() string { return Secondary.ModelID() }

type gemRequest struct {
	SystemInstruction *gemContent         `json:"systemInstruction,omitempty"`
	Contents          []gemContent        `json:"contents"`
	GenerationConfig  gemGenerationConfig `json:"generationConfig"`
}

type gemContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []gemPart `json:"parts"`
}

type gemPart struct {
	Text string `json:"text"`
}

type gemGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type gemResponse struct {
	Candidates []struct {
		Content      gemContent `json:"content"`
		FinishReason string     `json:"finishReason"`
	} `json:"candidates"`
}

// geminiRequest maps the prompt onto Gemini's user/model roles with the
// instruction blocks joined into a single system instruction.
func geminiRequest(p domain.Prompt) gemRequest {
	req := gemRequest{
		GenerationConfig: gemGenerationConfig{
			Temperature:     p.Temperature,
			MaxOutputTokens: p.MaxTokens,
		},
	}
	if len(p.System) > 0 {
		req.SystemInstruction = &gemContent{Parts: []gemPart{{Text: strings.Join(p.System, "\n\n")}}}
	}
	for _, t := range p.History {
		role := "user"
		if t.Role == domain.RoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, gemContent{Role: role, Parts: []gemPart{{Text: t.Content}}})
	}
	req.Contents = append(req.Contents, gemContent{Role: "user", Parts: []gemPart{{Text: p.Message}}})
	return req
}

func (g *Gemini) Complete(ctx context.Context, p domain.Prompt) (string, error) {
	jsonBody, err := json.Marshal(geminiRequest(p))
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?%s",
		g.apiBase, url.PathEscape(g.model), url.Values{"key": {g.apiKey}}.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		// url.Error embeds the endpoint, and with it the key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return "", &Error{Backend: "gemini", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &Error{Backend: "gemini", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var gemResp gemResponse
	if err := json.NewDecoder(resp.Body).Decode(&gemResp); err != nil {
		return "", &Error{Backend: "gemini", Err: fmt.Errorf("decode: %w", err)}
	}
	if len(gemResp.Candidates) == 0 || len(gemResp.Candidates[0].Content.Parts) == 0 {
		return "", &Error{Backend: "gemini", Err: errors.New("no candidates in response")}
	}

	var sb strings.Builder
	for _, part := range gemResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &Error{Backend: "gemini", Err: errors.New("empty completion")}
	}

	g.logger.Debug("gemini completion", "model", g.model, "finish", gemResp.Candidates[0].FinishReason)
	return text, nil
}
