package domain

import (
	"context"
	"time"
)

// RequestRecord is the metadata of one handled event. It never carries
// message content.
type RequestRecord struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // text | photo | draw | start | help
	ChatID    int64     `json:"chat_id"`
	Outcome   string    `json:"outcome"` // ok | error | rejected
	Error     string    `json:"error,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal records handled requests.
type Journal interface {
	Record(ctx context.Context, rec RequestRecord) error
	Close() error
}
