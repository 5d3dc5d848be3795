package domain

import "time"

// Role of a conversation turn.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation history. Immutable once appended.
type Turn struct {
	Role      string
	Content   string
	CreatedAt time.Time
}
