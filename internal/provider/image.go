package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"
)

const (
	inferenceDefaultBase  = "https://api-inference.huggingface.co/models"
	inferenceDefaultModel = "black-forest-labs/FLUX.1-schnell"

	pollinationsDefaultBase  = "https://image.pollinations.ai"
	pollinationsDefaultModel = "flux"

	imageDefaultTimeout = 30 * time.Second
	maxImageBytes       = 25 << 20
)

// ImageConfig configures either image backend.
type ImageConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Timeout time.Duration
	Client  *http.Client // optional; overrides Timeout
	Logger  *slog.Logger
}

func (cfg *ImageConfig) applyDefaults(base, model string) {
	if cfg.APIBase == "" {
		cfg.APIBase = base
	}
	if cfg.Model == "" {
		cfg.Model = model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = imageDefaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(cfg.Timeout)
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
}

// Inference implements domain.ImageGenerator for bearer-token inference
// endpoints that take a JSON prompt and answer with raw image bytes.
type Inference struct {
	cfg ImageConfig
}

func NewInference(cfg ImageConfig) *Inference {
	cfg.applyDefaults(inferenceDefaultBase, inferenceDefaultModel)
	return &Inference{cfg: cfg}
}

func (p *Inference) Name() string { return "inference" }

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
}

type inferenceParameters struct {
	Seed   int `json:"seed"`
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

func (p *Inference) Draw(ctx context.Context, req domain.DrawRequest) (resp *domain.DrawResponse, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream(p.Name(), start, outcomeOf(err)) }()

	body, err := json.Marshal(inferenceRequest{
		Inputs: req.Prompt,
		Parameters: inferenceParameters{
			Seed:   req.Seed,
			Width:  req.Width,
			Height: req.Height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	endpoint := p.cfg.APIBase + "/" + p.cfg.Model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "image/png")

	return fetchImage(p.cfg.Client, httpReq, p.Name(), p.cfg.Logger)
}

// Pollinations implements domain.ImageGenerator for unauthenticated
// URL-templated endpoints: GET {base}/prompt/{prompt}?width&height&seed&model.
type Pollinations struct {
	cfg ImageConfig
}

func NewPollinations(cfg ImageConfig) *Pollinations {
	cfg.applyDefaults(pollinationsDefaultBase, pollinationsDefaultModel)
	return &Pollinations{cfg: cfg}
}

func (p *Pollinations) Name() string { return "pollinations" }

func (p *Pollinations) Draw(ctx context.Context, req domain.DrawRequest) (resp *domain.DrawResponse, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream(p.Name(), start, outcomeOf(err)) }()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.buildURL(req), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	return fetchImage(p.cfg.Client, httpReq, p.Name(), p.cfg.Logger)
}

func (p *Pollinations) buildURL(req domain.DrawRequest) string {
	q := url.Values{}
	if req.Width > 0 {
		q.Set("width", strconv.Itoa(req.Width))
	}
	if req.Height > 0 {
		q.Set("height", strconv.Itoa(req.Height))
	}
	q.Set("seed", strconv.Itoa(req.Seed))
	q.Set("model", p.cfg.Model)
	q.Set("nologo", "true")
	return p.cfg.APIBase + "/prompt/" + url.PathEscape(req.Prompt) + "?" + q.Encode()
}

// fetchImage performs req and returns the body when it is an image.
func fetchImage(client *http.Client, req *http.Request, name string, logger *slog.Logger) (*domain.DrawResponse, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Provider: name, Kind: KindTransport, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(name, resp.StatusCode, body)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, &Error{Provider: name, Kind: KindTransport, Message: "reading image", Err: err}
	}
	if len(data) > maxImageBytes {
		return nil, &Error{Provider: name, Kind: KindDecode, Message: fmt.Sprintf("image exceeds %d bytes", maxImageBytes)}
	}
	if len(data) == 0 {
		return nil, &Error{Provider: name, Kind: KindEmpty, Message: "empty image body"}
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, &Error{Provider: name, Kind: KindDecode, Message: "unexpected content type " + mime}
	}

	if logger != nil {
		logger.Debug("image received", "provider", name, "bytes", len(data), "mime", mime)
	}
	return &domain.DrawResponse{Image: data, MimeType: mime}, nil
}
