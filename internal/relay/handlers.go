package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"relaybot/internal/domain"
)

// User-facing texts.
const (
	TruncationMarker    = domain.TruncationMarker
	UsageHint           = "Usage: /draw <description>"
	DefaultVisionPrompt = "Describe this image."
	ErrorPrefix         = "⚠️ Error: "

	drawingStatus  = "🎨 Drawing, please wait..."
	drawDisabled   = "Image generation is disabled."
	promptTooLong  = "The description is too long (max %d characters)."
	translateQuery = "Translate the following image description into English. " +
		"Return only the translation, without quotes or explanations.\n\n%s"

	startText = "Hi! I am a bot powered by Google Gemini.\n" +
		"Ask me anything, send a photo with a question, or use /draw <description>."
	helpText = "Commands:\n" +
		"/draw <description> - generate an image\n" +
		"/help - show this message\n\n" +
		"Any other message is answered by the model. " +
		"Photos are described, or the caption is answered about the photo."
)

// handleText answers a plain text message with one generation call.
func (r *Router) handleText(ctx context.Context, logger *slog.Logger, chatID int64, text string) error {
	r.typing(ctx, logger, chatID)

	resp, err := r.generator.Generate(ctx, domain.GenerationRequest{
		Parts: []domain.Part{domain.TextPart(text)},
	})
	if err != nil {
		logger.Warn("generation failed", "error", err)
		r.replyError(ctx, logger, chatID, err)
		return err
	}
	logGeneration(logger, resp)
	return r.reply(ctx, logger, chatID, r.truncate(resp.Text))
}

// handlePhoto downloads the attachment once and asks the model about it.
func (r *Router) handlePhoto(ctx context.Context, logger *slog.Logger, evt domain.Event) error {
	data, err := r.messenger.Download(ctx, *evt.Photo)
	if err != nil {
		logger.Warn("attachment download failed", "error", err, "file_size", evt.Photo.Size)
		r.replyError(ctx, logger, evt.ChatID, err)
		return err
	}

	r.typing(ctx, logger, evt.ChatID)

	prompt := evt.Caption
	if prompt == "" {
		prompt = r.visionPrompt
	}
	mimeType := evt.Photo.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	resp, err := r.generator.Generate(ctx, domain.GenerationRequest{
		Parts: []domain.Part{
			domain.TextPart(prompt),
			domain.ImagePart(data, mimeType),
		},
	})
	if err != nil {
		logger.Warn("vision generation failed", "error", err)
		r.replyError(ctx, logger, evt.ChatID, err)
		return err
	}
	logGeneration(logger, resp)
	return r.reply(ctx, logger, evt.ChatID, r.truncate(resp.Text))
}

// handleDraw runs /draw: optional translation, interim status, one image
// call, then either a photo (status removed) or the status edited to the
// error.
func (r *Router) handleDraw(ctx context.Context, logger *slog.Logger, evt domain.Event) error {
	prompt := strings.TrimSpace(evt.Args)
	if prompt == "" {
		_ = r.reply(ctx, logger, evt.ChatID, UsageHint)
		return fmt.Errorf("%w: empty draw prompt", errRejected)
	}
	if r.images == nil {
		_ = r.reply(ctx, logger, evt.ChatID, drawDisabled)
		return fmt.Errorf("%w: image generation disabled", errRejected)
	}
	if n := utf8.RuneCountInString(prompt); n > r.maxPromptRunes {
		_ = r.reply(ctx, logger, evt.ChatID, fmt.Sprintf(promptTooLong, r.maxPromptRunes))
		return fmt.Errorf("%w: draw prompt has %d characters", errRejected, n)
	}

	drawPrompt := prompt
	if r.translate {
		drawPrompt = r.translatePrompt(ctx, logger, prompt)
	}

	statusID, err := r.messenger.SendText(ctx, evt.ChatID, drawingStatus)
	if err != nil {
		logger.Error("status message failed", "error", err)
		statusID = 0
	}

	resp, err := r.images.Draw(ctx, domain.DrawRequest{
		Prompt: drawPrompt,
		Seed:   int(r.seed(r.seedMax)),
		Width:  r.width,
		Height: r.height,
	})
	if err != nil {
		logger.Warn("image generation failed", "error", err, "backend", r.images.Name())
		r.failStatus(ctx, logger, evt.ChatID, statusID, err)
		return err
	}

	caption := "🎨 " + prompt
	if drawPrompt != prompt {
		caption += "\n(" + drawPrompt + ")"
	}
	if _, err := r.messenger.SendPhoto(ctx, evt.ChatID, domain.OutboundPhoto{
		Image:    resp.Image,
		FileName: imageFileName(resp.MimeType),
		Caption:  caption,
	}); err != nil {
		logger.Error("photo send failed", "error", err)
		r.failStatus(ctx, logger, evt.ChatID, statusID, err)
		return err
	}

	if statusID != 0 {
		if err := r.messenger.Delete(ctx, evt.ChatID, statusID); err != nil {
			logger.Warn("status delete failed", "error", err, "message_id", statusID)
		}
	}
	return nil
}

// translatePrompt returns the English version of prompt. Any failure falls
// back to the original prompt without telling the user.
func (r *Router) translatePrompt(ctx context.Context, logger *slog.Logger, prompt string) string {
	resp, err := r.generator.Generate(ctx, domain.GenerationRequest{
		Parts: []domain.Part{domain.TextPart(fmt.Sprintf(translateQuery, prompt))},
	})
	if err != nil {
		logger.Debug("translation failed, using original prompt", "error", err)
		return prompt
	}
	translated := strings.Trim(strings.TrimSpace(resp.Text), `"'`)
	if translated == "" {
		return prompt
	}
	return translated
}

// failStatus puts the error text into the status message, or sends it as a
// new message when there is no status message.
func (r *Router) failStatus(ctx context.Context, logger *slog.Logger, chatID int64, statusID int, cause error) {
	text := ErrorPrefix + cause.Error()
	if statusID == 0 {
		_ = r.reply(ctx, logger, chatID, text)
		return
	}
	if err := r.messenger.EditText(ctx, chatID, statusID, text); err != nil {
		logger.Error("status edit failed", "error", err, "message_id", statusID)
	}
}

func logGeneration(logger *slog.Logger, resp *domain.GenerationResponse) {
	logger.Info("generation complete",
		"finish_reason", resp.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"total_tokens", resp.Usage.TotalTokens,
		"latency_ms", resp.LatencyMs,
	)
}

func (r *Router) reply(ctx context.Context, logger *slog.Logger, chatID int64, text string) error {
	if _, err := r.messenger.SendText(ctx, chatID, text); err != nil {
		logger.Error("reply failed", "error", err)
		return err
	}
	return nil
}

func (r *Router) replyError(ctx context.Context, logger *slog.Logger, chatID int64, cause error) {
	_ = r.reply(ctx, logger, chatID, ErrorPrefix+cause.Error())
}

func (r *Router) typing(ctx context.Context, logger *slog.Logger, chatID int64) {
	if err := r.messenger.SendTyping(ctx, chatID); err != nil {
		logger.Debug("typing action failed", "error", err)
	}
}

// truncate caps text at maxReplyRunes runes, appending TruncationMarker when
// anything was cut.
func (r *Router) truncate(text string) string {
	if utf8.RuneCountInString(text) <= r.maxReplyRunes {
		return text
	}
	return string([]rune(text)[:r.maxReplyRunes]) + TruncationMarker
}

func imageFileName(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return "image.jpg"
	case "image/webp":
		return "image.webp"
	default:
		return "image.png"
	}
}
