// Package conversation keeps the bounded per-session chat history.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alta-ny/chatbot/internal/models"
)

// ErrInvalidRole is returned when a turn is neither user nor assistant.
var ErrInvalidRole = errors.New("invalid turn role")

func checkRoles(turns []models.Turn) error {
	for _, t := range turns {
		if !t.Role.IsValid() {
			return fmt.Errorf("%w: %q", ErrInvalidRole, t.Role)
		}
	}
	return nil
}

// DefaultLimit is the number of turns kept per session (10 exchanges).
const DefaultLimit = 20

// Store holds conversation history. Append must add the turns and trim the
// session to its limit as one atomic step, evicting the oldest turns first.
type Store interface {
	Append(ctx context.Context, sessionID string, turns ...models.Turn) error
	// History returns the session's turns oldest first. Unknown sessions
	// yield an empty slice.
	History(ctx context.Context, sessionID string) ([]models.Turn, error)
	Clear(ctx context.Context, sessionID string) error
	// Count returns the number of sessions with history.
	Count(ctx context.Context) (int, error)
}

// MemoryStore is a process-local Store. History is lost on restart.
type MemoryStore struct {
	limit int

	mu       sync.Mutex
	sessions map[string][]models.Turn
}

func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &MemoryStore{limit: limit, sessions: make(map[string][]models.Turn)}
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, turns ...models.Turn) error {
	if err := checkRoles(turns); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.sessions[sessionID], turns...)
	if over := len(history) - s.limit; over > 0 {
		// Copy so the evicted prefix can be collected.
		history = append([]models.Turn(nil), history[over:]...)
	}
	s.sessions[sessionID] = history
	return nil
}

func (s *MemoryStore) History(_ context.Context, sessionID string) ([]models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Turn, len(s.sessions[sessionID]))
	copy(out, s.sessions[sessionID])
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions), nil
}
