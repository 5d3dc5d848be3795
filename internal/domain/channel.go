package domain

import "context"

// Channel is the interface for chat-platform I/O (Twitch, Telegram, CLI).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
