package domain

import "context"

// Generator is a hosted text/vision model.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResponse, error)
	Name() string
}

// ImageGenerator is a hosted text-to-image service.
type ImageGenerator interface {
	Draw(ctx context.Context, req DrawRequest) (*DrawResponse, error)
	Name() string
}

// Part is one piece of a multimodal prompt: either Text or inline image Data.
type Part struct {
	Text     string
	Data     []byte
	MimeType string
}

// TextPart builds a text-only part.
func TextPart(s string) Part { return Part{Text: s} }

// ImagePart builds an inline image part.
func ImagePart(data []byte, mimeType string) Part {
	return Part{Data: data, MimeType: mimeType}
}

// IsImage reports whether the part carries image bytes.
func (p Part) IsImage() bool { return len(p.Data) > 0 }

type GenerationRequest struct {
	Parts []Part
}

type GenerationResponse struct {
	Text         string
	FinishReason string
	Usage        Usage
	LatencyMs    int64
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type DrawRequest struct {
	Prompt string
	Seed   int
	Width  int
	Height int
}

type DrawResponse struct {
	Image    []byte
	MimeType string
}
