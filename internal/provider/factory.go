package provider

import (
	"fmt"
	"log/slog"
	"time"

	"relaybot/internal/config"
	"relaybot/internal/domain"
)

// NewGenerator builds the text/vision generator from config.
func NewGenerator(cfg config.GeminiConfig, logger *slog.Logger) *Gemini {
	return NewGemini(GeminiConfig{
		APIKey:  cfg.APIKey,
		APIBase: cfg.APIBase,
		Model:   cfg.Model,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})
}

// NewImageGenerator builds the configured text-to-image backend. It returns
// nil without error when image generation is disabled.
func NewImageGenerator(cfg config.ImageConfig, logger *slog.Logger) (domain.ImageGenerator, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	ic := ImageConfig{
		APIKey:  cfg.APIKey,
		APIBase: cfg.APIBase,
		Model:   cfg.Model,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		Logger:  logger,
	}
	switch cfg.Backend {
	case "inference":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("image backend inference: api key is required")
		}
		return NewInference(ic), nil
	case "pollinations":
		return NewPollinations(ic), nil
	default:
		return nil, fmt.Errorf("unknown image backend: %q", cfg.Backend)
	}
}
