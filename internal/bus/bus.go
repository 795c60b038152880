package bus

import (
	"log/slog"
	"sync"
	"time"

	"relaybot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based hand-off between channels and the router.
type InMemoryBus struct {
	inbound chan domain.Event
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan domain.Event, bufferSize),
		logger:  logger,
	}
}

// Publish blocks up to 10 seconds if the bus is full, then drops the event.
func (b *InMemoryBus) Publish(evt domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus", "kind", evt.Kind)
		return
	}

	select {
	case b.inbound <- evt:
	default:
		b.logger.Warn("inbound bus full, waiting...", "channel", evt.Channel, "chat_id", evt.ChatID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- evt:
			b.logger.Info("event delivered after wait", "channel", evt.Channel)
		case <-timer.C:
			b.logger.Error("event dropped: bus full for 10s",
				"channel", evt.Channel,
				"chat_id", evt.ChatID,
				"kind", evt.Kind,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.Event {
	return b.inbound
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
