// Package resolver classifies inbound chat events and rewrites reply-to-bot
// messages into prompts that carry the bot's previous answer as context.
package resolver

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"streambot/internal/domain"
)

// Action is the resolver's verdict for one chat event.
type Action int

const (
	// ActionEnqueue means the event produced a valid pending request.
	ActionEnqueue Action = iota
	// ActionCommand means the event is a chat command for the command handler.
	ActionCommand
	// ActionDrop means the event is addressed to another user and must be
	// suppressed entirely. Replying here would be noise.
	ActionDrop
	// ActionUsageHint means the prompt was empty after stripping; the
	// caller should surface a short usage hint to the originating channel.
	ActionUsageHint
)

// Resolver turns chat events into pending requests. It owns the per-author
// last-response state used for reply threading.
type Resolver struct {
	mention string // lowercased "@<bot-name>"
	logger  *slog.Logger

	mu   sync.RWMutex
	last map[string]string // author -> most recent assistant text
}

func New(botName string, logger *slog.Logger) *Resolver {
	return &Resolver{
		mention: "@" + strings.ToLower(strings.TrimPrefix(botName, "@")),
		logger:  logger,
		last:    make(map[string]string),
	}
}

// Resolve classifies evt and, for ActionEnqueue, returns the request to
// put on the ingestion queue.
func (r *Resolver) Resolve(evt domain.ChatEvent) (domain.PendingRequest, Action) {
	if evt.IsCommand {
		return domain.PendingRequest{}, ActionCommand
	}

	content := evt.RawContent

	// A mention of the bot is only honored as a message prefix. Mentions
	// that appear mid-message are treated as ordinary text.
	if lower := strings.ToLower(content); strings.HasPrefix(lower, r.mention) {
		stripped := strings.TrimLeft(content[len(r.mention):], " \t")
		if stripped == "" {
			return domain.PendingRequest{}, ActionUsageHint
		}
		return r.newRequest(evt, r.threadPrompt(evt.Author, stripped)), ActionEnqueue
	}

	// Addressed to some other user: stay quiet.
	if strings.HasPrefix(content, "@") {
		r.logger.Debug("suppressing message addressed to another user",
			"author", evt.Author,
			"channel", evt.OriginChannel,
		)
		return domain.PendingRequest{}, ActionDrop
	}

	if strings.TrimSpace(content) == "" {
		return domain.PendingRequest{}, ActionUsageHint
	}

	return r.newRequest(evt, content), ActionEnqueue
}

// threadPrompt embeds the bot's previous answer to this author, if any,
// so a direct reply reads as a follow-up rather than a fresh question.
func (r *Resolver) threadPrompt(author, stripped string) string {
	r.mu.RLock()
	last, ok := r.last[author]
	r.mu.RUnlock()

	if !ok {
		return stripped
	}
	return fmt.Sprintf("Earlier you said: %s\nNow the user says: %s", last, stripped)
}

func (r *Resolver) newRequest(evt domain.ChatEvent, prompt string) domain.PendingRequest {
	return domain.PendingRequest{
		ID:            uuid.NewString(),
		Prompt:        prompt,
		Author:        evt.Author,
		OriginChannel: evt.OriginChannel,
		Platform:      evt.Platform,
	}
}

// SetLastResponse records the assistant text most recently delivered to
// author. Called by the dispatcher after a successful backend call only.
func (r *Resolver) SetLastResponse(author, text string) {
	r.mu.Lock()
	r.last[author] = text
	r.mu.Unlock()
}

// LastResponse returns the most recent assistant text for author.
func (r *Resolver) LastResponse(author string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	text, ok := r.last[author]
	return text, ok
}
