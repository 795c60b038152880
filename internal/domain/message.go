package domain

import "time"

// MaxTextRunes is the longest text message Telegram accepts.
const MaxTextRunes = 4096

// TruncationMarker is appended to replies cut to the configured length.
const TruncationMarker = "...(response truncated)"

// EventKind tags the variant carried by an Event.
type EventKind string

const (
	EventCommand EventKind = "command"
	EventText    EventKind = "text"
	EventPhoto   EventKind = "photo"
)

// Event is one inbound unit of user interaction. Exactly one of the
// variant-specific field groups is meaningful, selected by Kind:
//
//	EventCommand: Command, Args (Text holds the raw message)
//	EventText:    Text
//	EventPhoto:   Photo, Caption
type Event struct {
	Kind       EventKind
	Channel    string
	ChatID     int64
	SenderID   int64
	MessageID  int
	Text       string
	Command    string
	Args       string
	Caption    string
	Photo      *Attachment
	ReceivedAt time.Time
}

// Attachment references a file held by the messaging platform.
type Attachment struct {
	FileID   string
	Size     int
	MimeType string
}

// OutboundPhoto is an image reply.
type OutboundPhoto struct {
	Image    []byte
	FileName string
	Caption  string
}
