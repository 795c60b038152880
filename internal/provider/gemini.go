package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"
)

const geminiDefaultBase = "https://generativelanguage.googleapis.com/v1beta"

// Gemini implements domain.Generator for the Gemini generateContent API.
// One request carries a single user turn made of text and inline image parts.
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
	Timeout time.Duration
	Client  *http.Client // optional; overrides Timeout
	Logger  *slog.Logger
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.APIBase == "" {
		cfg.APIBase = geminiDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(cfg.Timeout)
	}
	return &Gemini{
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		model:   cfg.Model,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (g *Gemini) Name() string  { return "gemini" }
func (g *Gemini) Model() string { return g.model }

// Healthy fetches the model descriptor; it fails on a bad key or unknown model.
func (g *Gemini) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.modelURL(g.model), nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", g.apiKey)
	resp, err := g.client.Do(req)
	if err != nil {
		return &Error{Provider: g.Name(), Kind: KindTransport, Message: "not reachable", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(g.Name(), resp.StatusCode, body)
	}
	return nil
}

type gemRequest struct {
	Contents []gemContent `json:"contents"`
}

type gemContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []gemPart `json:"parts"`
}

type gemPart struct {
	Text       string   `json:"text,omitempty"`
	InlineData *gemBlob `json:"inline_data,omitempty"`
}

type gemBlob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type gemResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Generate sends the prompt parts and returns the concatenated text of the
// first candidate.
func (g *Gemini) Generate(ctx context.Context, req domain.GenerationRequest) (resp *domain.GenerationResponse, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream(g.Name(), start, outcomeOf(err)) }()

	if len(req.Parts) == 0 {
		return nil, &Error{Provider: g.Name(), Kind: KindEmpty, Message: "empty prompt"}
	}

	parts := make([]gemPart, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.IsImage() {
			mime := p.MimeType
			if mime == "" {
				mime = http.DetectContentType(p.Data)
			}
			parts = append(parts, gemPart{InlineData: &gemBlob{
				MimeType: mime,
				Data:     base64.StdEncoding.EncodeToString(p.Data),
			}})
			continue
		}
		parts = append(parts, gemPart{Text: p.Text})
	}

	body := gemRequest{Contents: []gemContent{{Role: "user", Parts: parts}}}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.modelURL(g.model)+":generateContent", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: g.Name(), Kind: KindTransport, Message: "request failed", Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, statusError(g.Name(), httpResp.StatusCode, respBody)
	}

	var gr gemResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&gr); err != nil {
		return nil, &Error{Provider: g.Name(), Kind: KindDecode, Message: "cannot decode response", Err: err}
	}

	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return nil, &Error{Provider: g.Name(), Kind: KindBlocked, Message: "prompt blocked: " + gr.PromptFeedback.BlockReason}
	}
	if len(gr.Candidates) == 0 {
		return nil, &Error{Provider: g.Name(), Kind: KindEmpty, Message: "no candidates in response"}
	}

	cand := gr.Candidates[0]
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		if cand.FinishReason != "" && cand.FinishReason != "STOP" {
			return nil, &Error{Provider: g.Name(), Kind: KindBlocked, Message: "generation stopped: " + cand.FinishReason}
		}
		return nil, &Error{Provider: g.Name(), Kind: KindEmpty, Message: "empty response text"}
	}

	latency := time.Since(start)
	g.logger.Debug("gemini: response received",
		"model", g.model,
		"finish_reason", cand.FinishReason,
		"tokens", gr.UsageMetadata.TotalTokenCount,
		"latency", latency,
	)

	return &domain.GenerationResponse{
		Text:         sb.String(),
		FinishReason: cand.FinishReason,
		Usage: domain.Usage{
			PromptTokens:     gr.UsageMetadata.PromptTokenCount,
			CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gr.UsageMetadata.TotalTokenCount,
		},
		LatencyMs: latency.Milliseconds(),
	}, nil
}

func (g *Gemini) modelURL(model string) string {
	return g.apiBase + "/models/" + url.PathEscape(model)
}
