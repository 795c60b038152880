package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxCaptionLen = 1024
	telegramDownloadLimit = 20 << 20
)

// ErrAttachmentTooLarge is returned by Download when a file exceeds the
// configured limit.
var ErrAttachmentTooLarge = errors.New("attachment too large")

// botAPI is the subset of *tgbotapi.BotAPI the channel uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

var (
	_ domain.Channel   = (*Telegram)(nil)
	_ domain.Messenger = (*Telegram)(nil)
)

// Telegram is the inbound event source (long-poll) and the domain.Messenger
// for the Telegram Bot API.
type Telegram struct {
	token        string
	parseMode    string
	pollTimeout  int
	maxDownload  int64
	apiEndpoint  string
	// fileEndpoint formats download URLs: token, then file path.
	fileEndpoint string

	api        *tgbotapi.BotAPI
	bot        botAPI
	httpClient *http.Client
	logger     *slog.Logger
}

type TelegramConfig struct {
	Token              string
	ParseMode          string // "", Markdown, MarkdownV2, HTML
	PollTimeoutSeconds int
	MaxDownloadBytes   int64
	APIEndpoint        string // optional Bot API server, format "https://host/bot%s/%s"
	Logger             *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.PollTimeoutSeconds <= 0 {
		cfg.PollTimeoutSeconds = 30
	}
	if cfg.MaxDownloadBytes <= 0 {
		cfg.MaxDownloadBytes = telegramDownloadLimit
	}
	return &Telegram{
		token:        cfg.Token,
		parseMode:    cfg.ParseMode,
		pollTimeout:  cfg.PollTimeoutSeconds,
		maxDownload:  cfg.MaxDownloadBytes,
		apiEndpoint:  cfg.APIEndpoint,
		fileEndpoint: fileEndpointFor(cfg.APIEndpoint),
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
		logger:       cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Connect authenticates the bot token against the Bot API.
func (t *Telegram) Connect() error {
	var (
		bot *tgbotapi.BotAPI
		err error
	)
	if t.apiEndpoint != "" {
		bot, err = tgbotapi.NewBotAPIWithClient(t.token, t.apiEndpoint, &http.Client{})
	} else {
		bot, err = tgbotapi.NewBotAPI(t.token)
	}
	if err != nil {
		return t.wrap("telegram bot init", err)
	}
	t.api = bot
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	return nil
}

// Start long-polls for updates and publishes them to bus until ctx is done.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	if t.api == nil {
		return errors.New("telegram: Connect must be called before Start")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := t.api.GetUpdatesChan(u)

	t.logger.Info("telegram polling started", "timeout", t.pollTimeout)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			t.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			evt, ok := toEvent(update.Message)
			if !ok {
				continue
			}
			t.logger.Debug("telegram update received",
				"chat_id", evt.ChatID,
				"kind", evt.Kind,
				"text_len", len(evt.Text),
			)
			bus.Publish(evt)
		}
	}
}

// toEvent classifies a Telegram message into the tagged event union. Photo
// messages (and image documents) win over text; a leading bot command makes
// the message a command.
func toEvent(msg *tgbotapi.Message) (domain.Event, bool) {
	if msg == nil || msg.Chat == nil {
		return domain.Event{}, false
	}
	evt := domain.Event{
		Channel:    "telegram",
		ChatID:     msg.Chat.ID,
		MessageID:  msg.MessageID,
		ReceivedAt: time.Unix(int64(msg.Date), 0),
	}
	if msg.From != nil {
		evt.SenderID = msg.From.ID
	}

	switch {
	case len(msg.Photo) > 0:
		// Sizes are ascending; the last one is the original resolution.
		largest := msg.Photo[len(msg.Photo)-1]
		evt.Kind = domain.EventPhoto
		evt.Caption = strings.TrimSpace(msg.Caption)
		evt.Photo = &domain.Attachment{FileID: largest.FileID, Size: largest.FileSize, MimeType: "image/jpeg"}
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		evt.Kind = domain.EventPhoto
		evt.Caption = strings.TrimSpace(msg.Caption)
		evt.Photo = &domain.Attachment{FileID: msg.Document.FileID, Size: msg.Document.FileSize, MimeType: msg.Document.MimeType}
	case msg.IsCommand():
		evt.Kind = domain.EventCommand
		evt.Text = msg.Text
		evt.Command = strings.ToLower(msg.Command())
		evt.Args = strings.TrimSpace(msg.CommandArguments())
	case strings.TrimSpace(msg.Text) != "":
		evt.Kind = domain.EventText
		evt.Text = strings.TrimSpace(msg.Text)
	default:
		return domain.Event{}, false
	}
	return evt, true
}

// SendText sends text with the configured parse mode. If Telegram rejects the
// markup, the original text is resent once without a parse mode.
func (t *Telegram) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, FormatMarkup(text, t.parseMode))
	msg.ParseMode = t.parseMode

	sent, err := t.bot.Send(msg)
	if err == nil {
		metrics.RepliesTotal.WithLabelValues("text").Inc()
		return sent.MessageID, nil
	}
	if t.parseMode == "" || !isMarkupRejection(err) {
		return 0, t.wrap("telegram send", err)
	}

	t.logger.Warn("telegram rejected markup, resending as plain text",
		"err", t.wrap("telegram send", err), "parse_mode", t.parseMode, "chat_id", chatID,
	)
	metrics.MarkupFallbacks.Inc()

	sent, err = t.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, t.wrap("telegram send plain", err)
	}
	metrics.RepliesTotal.WithLabelValues("text").Inc()
	return sent.MessageID, nil
}

func (t *Telegram) SendPhoto(ctx context.Context, chatID int64, photo domain.OutboundPhoto) (int, error) {
	name := photo.FileName
	if name == "" {
		name = "image.png"
	}
	cfg := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: photo.Image})
	cfg.Caption = truncateRunes(photo.Caption, telegramMaxCaptionLen)

	sent, err := t.bot.Send(cfg)
	if err != nil {
		return 0, t.wrap("telegram send photo", err)
	}
	metrics.RepliesTotal.WithLabelValues("photo").Inc()
	return sent.MessageID, nil
}

func (t *Telegram) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	if _, err := t.bot.Request(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		return t.wrap("telegram edit", err)
	}
	return nil
}

func (t *Telegram) Delete(ctx context.Context, chatID int64, messageID int) error {
	if _, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return t.wrap("telegram delete", err)
	}
	return nil
}

func (t *Telegram) SendTyping(ctx context.Context, chatID int64) error {
	if _, err := t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return t.wrap("telegram chat action", err)
	}
	return nil
}

// Download fetches the attachment bytes through the Bot API file endpoint.
func (t *Telegram) Download(ctx context.Context, att domain.Attachment) ([]byte, error) {
	if int64(att.Size) > t.maxDownload {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrAttachmentTooLarge, att.Size, t.maxDownload)
	}

	file, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: att.FileID})
	if err != nil {
		return nil, t.wrap("telegram get file", err)
	}
	fileURL := fmt.Sprintf(t.fileEndpoint, t.token, file.FilePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, t.wrap("new request", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, t.wrap("telegram download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram download: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxDownload+1))
	if err != nil {
		return nil, t.wrap("telegram download", err)
	}
	if int64(len(data)) > t.maxDownload {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrAttachmentTooLarge, t.maxDownload)
	}
	return data, nil
}

// wrap prefixes err with op and removes the bot token from its text. Bot API
// and file URLs embed the token, and transport errors quote the URL; error
// text may end up in a reply to the user.
func (t *Telegram) wrap(op string, err error) error {
	msg := op + ": " + err.Error()
	if t.token != "" {
		msg = strings.ReplaceAll(msg, t.token, "<redacted>")
	}
	return &redactedError{msg: msg, err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// fileEndpointFor derives the file download URL format from a custom Bot API
// endpoint ("https://host/bot%s/%s" serves files at "https://host/file/bot%s/%s").
func fileEndpointFor(apiEndpoint string) string {
	if apiEndpoint == "" || !strings.Contains(apiEndpoint, "/bot%s/%s") {
		return tgbotapi.FileEndpoint
	}
	return strings.Replace(apiEndpoint, "/bot%s/%s", "/file/bot%s/%s", 1)
}

// isMarkupRejection reports whether err is Telegram refusing the entities of
// a formatted message.
func isMarkupRejection(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code != 0 && apiErr.Code != http.StatusBadRequest {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "can't parse entities") ||
		strings.Contains(msg, "can't find end of")
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
