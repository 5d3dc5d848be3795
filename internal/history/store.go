// Package history keeps the short, time-bounded conversation memory the
// dispatcher reads before every backend call.
package history

import (
	"sync"
	"time"

	"streambot/internal/domain"
)

// Store holds per-author conversation history, bounded by turn count and
// age. Histories are created lazily on first append and never removed;
// the author map growing with distinct chatters is an accepted trade-off.
type Store struct {
	maxTurns int // hard cap: one user + one assistant turn per exchange
	maxAge   time.Duration

	mu      sync.Mutex
	authors map[string]*authorHistory
}

// authorHistory serializes all mutation for a single author so two
// messages from the same user landing in one batch window cannot lose an
// update to a concurrent append.
type authorHistory struct {
	mu    sync.Mutex
	turns []domain.Turn
}

// NewStore creates a store keeping at most maxExchanges user/assistant
// pairs per author, with turns expiring after maxAge.
func NewStore(maxExchanges int, maxAge time.Duration) *Store {
	if maxExchanges <= 0 {
		maxExchanges = 3
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Store{
		maxTurns: maxExchanges * 2,
		maxAge:   maxAge,
		authors:  make(map[string]*authorHistory),
	}
}

func (s *Store) author(name string) *authorHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.authors[name]
	if !ok {
		h = &authorHistory{}
		s.authors[name] = h
	}
	return h
}

// History prunes and returns a copy of the author's turns. Expired turns
// are dropped first, then the most recent maxTurns are kept.
func (s *Store) History(author string) []domain.Turn {
	h := s.author(author)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = prune(h.turns, s.maxTurns, s.maxAge, time.Now())

	out := make([]domain.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// AppendExchange records one completed user/assistant exchange and
// truncates to the turn cap. Only called after a successful backend
// response; failures must leave history untouched.
func (s *Store) AppendExchange(author string, user, assistant domain.Turn) {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if assistant.CreatedAt.IsZero() {
		assistant.CreatedAt = now
	}
	user.Role = domain.RoleUser
	assistant.Role = domain.RoleAssistant

	h := s.author(author)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, user, assistant)
	if len(h.turns) > s.maxTurns {
		h.turns = append([]domain.Turn(nil), h.turns[len(h.turns)-s.maxTurns:]...)
	}
}

// prune drops turns older than maxAge, then keeps the most recent maxTurns.
func prune(turns []domain.Turn, maxTurns int, maxAge time.Duration, now time.Time) []domain.Turn {
	kept := turns[:0]
	for _, turn := range turns {
		if now.Sub(turn.CreatedAt) < maxAge {
			kept = append(kept, turn)
		}
	}
	if len(kept) > maxTurns {
		kept = kept[len(kept)-maxTurns:]
	}
	return kept
}

// Authors reports how many distinct authors have history. Used by the
// status command and metrics.
func (s *Store) Authors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.authors)
}
