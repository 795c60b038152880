package relay

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"

	"github.com/google/uuid"
)

const (
	defaultConcurrency    = 16
	defaultMaxReplyRunes  = 4000
	defaultSeedMax        = 1_000_000
	defaultMaxPromptRunes = 1000
	defaultImageSize      = 1024
)

// errRejected marks requests refused before any upstream call.
var errRejected = errors.New("request rejected")

// Router receives inbound events and dispatches each one to exactly one
// handler, in its own goroutine.
type Router struct {
	bus       domain.MessageBus
	messenger domain.Messenger
	generator domain.Generator
	images    domain.ImageGenerator
	journal   domain.Journal
	logger    *slog.Logger

	concurrency    int
	maxReplyRunes  int
	visionPrompt   string
	translate      bool
	seedMax        int64
	width, height  int
	maxPromptRunes int
	seed           func(n int64) int64
}

// RouterConfig holds all dependencies and tuning parameters for the router.
type RouterConfig struct {
	Bus       domain.MessageBus
	Messenger domain.Messenger
	Generator domain.Generator
	Images    domain.ImageGenerator // nil disables /draw
	Journal   domain.Journal        // optional
	Logger    *slog.Logger

	MaxConcurrent  int // max events handled in parallel (default 16)
	MaxReplyRunes  int
	VisionPrompt   string
	Translate      bool
	SeedMax        int64
	Width          int
	Height         int
	MaxPromptRunes int

	// Seed returns a value in [0, n). Defaults to math/rand.
	Seed func(n int64) int64
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultConcurrency
	}
	if cfg.MaxReplyRunes <= 0 {
		cfg.MaxReplyRunes = defaultMaxReplyRunes
	}
	if cfg.VisionPrompt == "" {
		cfg.VisionPrompt = DefaultVisionPrompt
	}
	if cfg.SeedMax <= 0 {
		cfg.SeedMax = defaultSeedMax
	}
	if cfg.Width <= 0 {
		cfg.Width = defaultImageSize
	}
	if cfg.Height <= 0 {
		cfg.Height = defaultImageSize
	}
	if cfg.MaxPromptRunes <= 0 {
		cfg.MaxPromptRunes = defaultMaxPromptRunes
	}
	if cfg.Seed == nil {
		cfg.Seed = rand.Int64N
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{
		bus:            cfg.Bus,
		messenger:      cfg.Messenger,
		generator:      cfg.Generator,
		images:         cfg.Images,
		journal:        cfg.Journal,
		logger:         cfg.Logger,
		concurrency:    cfg.MaxConcurrent,
		maxReplyRunes:  cfg.MaxReplyRunes,
		visionPrompt:   cfg.VisionPrompt,
		translate:      cfg.Translate,
		seedMax:        cfg.SeedMax,
		width:          cfg.Width,
		height:         cfg.Height,
		maxPromptRunes: cfg.MaxPromptRunes,
		seed:           cfg.Seed,
	}
}

// Run consumes inbound events until ctx is done or the bus is closed.
// In-flight handlers are not waited for.
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info("router started", "concurrency", r.concurrency)

	sem := make(chan struct{}, r.concurrency)
	inbound := r.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("router stopping")
			return nil
		case evt, ok := <-inbound:
			if !ok {
				r.logger.Info("inbound channel closed, router stopping")
				return nil
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			go func(e domain.Event) {
				defer func() { <-sem }()
				r.Handle(ctx, e)
			}(evt)
		}
	}
}

// Handle processes one event synchronously. It never returns an error:
// every failure becomes a reply to the user.
func (r *Router) Handle(ctx context.Context, evt domain.Event) {
	reqID := uuid.NewString()
	logger := r.logger.With("request_id", reqID, "chat_id", evt.ChatID, "kind", evt.Kind)
	start := time.Now()

	kind, err := r.dispatch(ctx, logger, evt)
	if kind == "" {
		logger.Debug("event dropped", "command", evt.Command)
		return
	}
	metrics.EventsTotal.WithLabelValues(kind).Inc()

	outcome := "ok"
	switch {
	case errors.Is(err, errRejected):
		outcome = "rejected"
	case err != nil:
		outcome = "error"
	}
	logger.Info("event handled",
		"handler", kind,
		"outcome", outcome,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	r.record(ctx, logger, domain.RequestRecord{
		ID:        reqID,
		Kind:      kind,
		ChatID:    evt.ChatID,
		Outcome:   outcome,
		Error:     errorText(err),
		LatencyMs: time.Since(start).Milliseconds(),
		CreatedAt: start.UTC(),
	})
}

// dispatch selects the handler for evt and returns its name, or "" when the
// event is dropped.
func (r *Router) dispatch(ctx context.Context, logger *slog.Logger, evt domain.Event) (string, error) {
	switch evt.Kind {
	case domain.EventCommand:
		switch evt.Command {
		case "draw":
			return "draw", r.handleDraw(ctx, logger, evt)
		case "start":
			return "start", r.reply(ctx, logger, evt.ChatID, startText)
		case "help":
			return "help", r.reply(ctx, logger, evt.ChatID, helpText)
		default:
			// Unknown commands are ordinary text for the model.
			if strings.TrimSpace(evt.Text) == "" {
				return "", nil
			}
			return "text", r.handleText(ctx, logger, evt.ChatID, evt.Text)
		}
	case domain.EventPhoto:
		if evt.Photo == nil {
			return "", nil
		}
		return "photo", r.handlePhoto(ctx, logger, evt)
	case domain.EventText:
		if strings.TrimSpace(evt.Text) == "" {
			return "", nil
		}
		return "text", r.handleText(ctx, logger, evt.ChatID, evt.Text)
	default:
		return "", nil
	}
}

func (r *Router) record(ctx context.Context, logger *slog.Logger, rec domain.RequestRecord) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Record(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn("journal record failed", "error", err)
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
