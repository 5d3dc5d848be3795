// Package bus connects chat channels to the pipeline in-process.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"streambot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based message bus. Channels publish inbound
// chat events; the pipeline subscribes to them and sends outbound replies
// back through per-platform handlers.
type InMemoryBus struct {
	inbound  chan domain.ChatEvent
	handlers map[string]func(domain.OutboundMessage)
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

// New creates a bus with the given inbound buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound:  make(chan domain.ChatEvent, bufferSize),
		handlers: make(map[string]func(domain.OutboundMessage)),
		logger:   logger,
	}
}

// Publish delivers an inbound event to the pipeline. If the buffer is full
// it waits up to 10 seconds instead of dropping.
func (b *InMemoryBus) Publish(evt domain.ChatEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- evt:
	default:
		b.logger.Warn("inbound bus full, waiting...", "platform", evt.Platform, "author", evt.Author)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- evt:
		case <-timer.C:
			b.logger.Error("chat event dropped: bus full for 10s",
				"platform", evt.Platform,
				"author", evt.Author,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.ChatEvent {
	return b.inbound
}

// SendOutbound routes a reply to the handler registered for its platform.
func (b *InMemoryBus) SendOutbound(msg domain.OutboundMessage) {
	b.mu.RLock()
	handler, ok := b.handlers[msg.Platform]
	b.mu.RUnlock()

	if !ok {
		b.logger.Warn("no handler registered for platform", "platform", msg.Platform)
		return
	}

	handler(msg)
}

func (b *InMemoryBus) OnOutbound(platform string, handler func(domain.OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[platform] = handler
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
