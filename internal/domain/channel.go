package domain

import "context"

// Messenger is the outbound surface of a messaging platform, as seen by the
// handlers. Message IDs are platform message identifiers within a chat.
type Messenger interface {
	// SendText sends text using the configured markup, falling back to plain
	// text once if the platform rejects the markup.
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	SendPhoto(ctx context.Context, chatID int64, photo OutboundPhoto) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	SendTyping(ctx context.Context, chatID int64) error
	// Download fetches an attachment fully into memory.
	Download(ctx context.Context, att Attachment) ([]byte, error)
}

// Channel is an inbound event source (Telegram long-poll).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
}
